package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is loaded once at startup and passed by value into the
// chunker, orchestrator and backfill engine.
type PipelineConfig struct {
	Chunk      ChunkConfig      `yaml:"chunk"`
	Poll       PollConfig       `yaml:"poll"`
	Generative GenerativeLimits `yaml:"generative"`
	// Timeout bounds one document's analysis when the caller supplies none.
	Timeout time.Duration `yaml:"timeout"`
	// KeywordHints maps a critical field (or leaf path) to lowercase phrases
	// that suggest a chunk mentions it.
	KeywordHints map[string][]string `yaml:"keyword_hints"`
}

type ChunkConfig struct {
	MaxChars int `yaml:"max_chars"`
	Overlap  int `yaml:"overlap"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type GenerativeLimits struct {
	Workers int `yaml:"workers"`
	// MaxChunkChars caps the text sent per generative call.
	MaxChunkChars int `yaml:"max_chunk_chars"`
}

// DefaultKeywordHints is the starting table for backfill chunk selection.
// Values are tuned against sample tender files, not derived from them.
var DefaultKeywordHints = map[string][]string{
	"iletisim":                       {"adres", "telefon", "e-posta", "elektronik posta", "faks", "ilgili personel", "yetkili"},
	"iletisim.adres":                 {"adres", "adresi"},
	"iletisim.telefon":               {"telefon", "tel:", "tel."},
	"iletisim.email":                 {"e-posta", "elektronik posta", "eposta", "@"},
	"iletisim.yetkili_kisi":          {"ilgili personel", "yetkili", "adı-soyadı"},
	"teminat":                        {"teminat", "geçici teminat", "kesin teminat"},
	"yemek.servis_saatleri":          {"servis saati", "yemek saati", "kahvaltı", "öğle", "akşam", "saat"},
	"mali.tahmini_bedel":             {"yaklaşık maliyet", "tahmini bedel", "tahmini tutar", "bedel"},
	"kurum.ihale_konusu":             {"ihale konusu", "işin adı", "konusu"},
	"kurum.ad":                       {"idarenin", "idare", "kurum", "başkanlığı", "müdürlüğü"},
	"kurum.ihale_kayit_no":           {"ihale kayıt", "ikn", "kayıt numarası"},
	"tarihler.sure":                  {"süre", "süresi", "takvim günü", "ay süre"},
	"yemek.kisi_sayisi":              {"kişi sayısı", "kişi", "kişilik"},
	"yemek.ogun_sayisi":              {"öğün sayısı", "öğün", "toplam öğün"},
	"tarihler.baslangic_tarihi":      {"işe başlama", "başlangıç", "başlama tarihi"},
	"tarihler.bitis_tarihi":          {"bitiş", "sona erme", "işin bitiş"},
	"yemek.servis_saatleri.kahvalti": {"kahvaltı"},
	"yemek.servis_saatleri.ogle":     {"öğle"},
	"yemek.servis_saatleri.aksam":    {"akşam"},
}

// DefaultPipelineConfig returns the built-in defaults.
func DefaultPipelineConfig() PipelineConfig {
	hints := make(map[string][]string, len(DefaultKeywordHints))
	for k, v := range DefaultKeywordHints {
		hints[k] = append([]string(nil), v...)
	}
	return PipelineConfig{
		Chunk:        ChunkConfig{MaxChars: 24000, Overlap: 400},
		Poll:         PollConfig{Interval: 2 * time.Second, MaxAttempts: 60},
		Generative:   GenerativeLimits{Workers: 4, MaxChunkChars: 30000},
		Timeout:      10 * time.Minute,
		KeywordHints: hints,
	}
}

// LoadPipelineConfig layers an optional YAML file and PIPELINE_* environment
// variables over the defaults. An empty path skips the file.
func LoadPipelineConfig(path string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return PipelineConfig{}, fmt.Errorf("failed to read pipeline config: %w", err)
		}
		var file PipelineConfig
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return PipelineConfig{}, fmt.Errorf("failed to parse pipeline config: %w", err)
		}
		cfg.overlay(file)
	}

	loadDotEnv()
	cfg.Chunk.MaxChars = envInt("PIPELINE_CHUNK_MAX_CHARS", cfg.Chunk.MaxChars)
	cfg.Chunk.Overlap = envInt("PIPELINE_CHUNK_OVERLAP", cfg.Chunk.Overlap)
	cfg.Poll.Interval = envDuration("PIPELINE_POLL_INTERVAL", cfg.Poll.Interval)
	cfg.Poll.MaxAttempts = envInt("PIPELINE_POLL_MAX_ATTEMPTS", cfg.Poll.MaxAttempts)
	cfg.Generative.Workers = envInt("PIPELINE_GENERATIVE_WORKERS", cfg.Generative.Workers)
	cfg.Timeout = envDuration("PIPELINE_TIMEOUT", cfg.Timeout)

	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}

// overlay copies the non-zero settings of f onto c. Hint entries replace the
// default entry for the same key.
func (c *PipelineConfig) overlay(f PipelineConfig) {
	if f.Chunk.MaxChars > 0 {
		c.Chunk.MaxChars = f.Chunk.MaxChars
	}
	if f.Chunk.Overlap > 0 {
		c.Chunk.Overlap = f.Chunk.Overlap
	}
	if f.Poll.Interval > 0 {
		c.Poll.Interval = f.Poll.Interval
	}
	if f.Poll.MaxAttempts > 0 {
		c.Poll.MaxAttempts = f.Poll.MaxAttempts
	}
	if f.Generative.Workers > 0 {
		c.Generative.Workers = f.Generative.Workers
	}
	if f.Generative.MaxChunkChars > 0 {
		c.Generative.MaxChunkChars = f.Generative.MaxChunkChars
	}
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
	}
	for k, v := range f.KeywordHints {
		c.KeywordHints[k] = v
	}
}

func (c PipelineConfig) Validate() error {
	switch {
	case c.Chunk.MaxChars <= 0:
		return fmt.Errorf("chunk.max_chars must be positive, got %d", c.Chunk.MaxChars)
	case c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.MaxChars:
		return fmt.Errorf("chunk.overlap must be in [0, max_chars), got %d", c.Chunk.Overlap)
	case c.Poll.Interval <= 0:
		return fmt.Errorf("poll.interval must be positive")
	case c.Poll.MaxAttempts <= 0:
		return fmt.Errorf("poll.max_attempts must be positive")
	case c.Generative.Workers <= 0:
		return fmt.Errorf("generative.workers must be positive")
	}
	return nil
}

// HintsFor returns the hints for a field, falling back to its parent entry.
func (c PipelineConfig) HintsFor(field string) []string {
	if h, ok := c.KeywordHints[field]; ok {
		return h
	}
	for i := len(field) - 1; i > 0; i-- {
		if field[i] == '.' {
			if h, ok := c.KeywordHints[field[:i]]; ok {
				return h
			}
		}
	}
	return nil
}
