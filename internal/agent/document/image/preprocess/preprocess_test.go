package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 230, G: 220, B: 200, A: 255}
			if (x/4+y/4)%2 == 0 {
				c = color.RGBA{R: 20, G: 30, B: 40, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPipelineUpscalesNarrowImages(t *testing.T) {
	out, err := Apply(checker(100, 50), Pipeline(Config{MinWidth: 400}))
	require.NoError(t, err)
	assert.Equal(t, 400, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())
}

func TestGrayscaleRemovesColour(t *testing.T) {
	out, err := NewGrayscaleProcessor().Process(checker(8, 8))
	require.NoError(t, err)
	r, g, b, _ := out.At(6, 1).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestAdaptiveThresholdBinarizes(t *testing.T) {
	out, err := NewAdaptiveThresholdProcessor(11, 2).Process(checker(32, 32))
	require.NoError(t, err)
	gray, ok := out.(*image.Gray)
	require.True(t, ok)
	for _, px := range gray.Pix {
		assert.Contains(t, []uint8{0, 255}, px)
	}
	// dark squares go black, light squares stay white
	assert.Equal(t, uint8(0), gray.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(5, 1).Y)
}

func TestApplyRejectsNil(t *testing.T) {
	_, err := Apply(nil, Pipeline(DefaultConfig()))
	assert.Error(t, err)
}
