// Package preprocess holds the image filters applied before Tesseract OCR.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Step is one stage of the preprocessing pipeline.
type Step interface {
	Process(img image.Image) (image.Image, error)
}

type Config struct {
	// MinWidth upscales narrow scans; Tesseract reads ~300 DPI text best.
	MinWidth          int
	DenoiseStrength   float64
	ContrastAmount    float64
	SharpenStrength   float64
	AdaptiveThreshold bool
	AdaptiveBlockSize int
	AdaptiveConstant  float64
}

func DefaultConfig() Config {
	return Config{
		MinWidth:          1600,
		DenoiseStrength:   0.5,
		ContrastAmount:    20,
		SharpenStrength:   0.5,
		AdaptiveBlockSize: 11,
		AdaptiveConstant:  2,
	}
}

// Pipeline builds the default step order from cfg.
func Pipeline(cfg Config) []Step {
	steps := []Step{
		NewUpscaleProcessor(cfg.MinWidth),
		NewGrayscaleProcessor(),
		NewDenoiseProcessor(cfg.DenoiseStrength),
		NewContrastProcessor(cfg.ContrastAmount),
	}
	if cfg.AdaptiveThreshold {
		steps = append(steps, NewAdaptiveThresholdProcessor(cfg.AdaptiveBlockSize, cfg.AdaptiveConstant))
	}
	return append(steps, NewSharpenProcessor(cfg.SharpenStrength))
}

// Apply runs steps in order.
func Apply(img image.Image, steps []Step) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	var err error
	for _, s := range steps {
		img, err = s.Process(img)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if img == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return img, nil
}

type UpscaleProcessor struct {
	minWidth int
}

func NewUpscaleProcessor(minWidth int) *UpscaleProcessor {
	return &UpscaleProcessor{minWidth: minWidth}
}

func (p *UpscaleProcessor) Process(img image.Image) (image.Image, error) {
	if p.minWidth <= 0 || img.Bounds().Dx() >= p.minWidth {
		return img, nil
	}
	return imaging.Resize(img, p.minWidth, 0, imaging.Lanczos), nil
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// 降噪处理器
type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	if p.strength <= 0 {
		return img, nil
	}
	return imaging.Blur(img, p.strength), nil
}

type ContrastProcessor struct {
	amount float64
}

func NewContrastProcessor(amount float64) *ContrastProcessor {
	return &ContrastProcessor{amount: amount}
}

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

// 锐化处理器
type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	if p.strength <= 0 {
		return img, nil
	}
	return imaging.Sharpen(img, p.strength), nil
}

// 自适应阈值处理器. Uses an integral image so the cost does not grow with the block size.
type AdaptiveThresholdProcessor struct {
	blockSize int
	constant  float64
}

func NewAdaptiveThresholdProcessor(blockSize int, constant float64) *AdaptiveThresholdProcessor {
	return &AdaptiveThresholdProcessor{blockSize: blockSize, constant: constant}
}

func (p *AdaptiveThresholdProcessor) Process(img image.Image) (image.Image, error) {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(gray.Pix[y*gray.Stride+x*4])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	result := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(result, result.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	half := p.blockSize / 2
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h-1, y+half)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w-1, x+half)
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] - integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := float64(sum) / float64(count)
			if float64(gray.Pix[y*gray.Stride+x*4]) < mean-p.constant {
				result.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return result, nil
}
