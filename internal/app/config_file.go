package app

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// duration decodes "2s"-style YAML scalars; yaml.v3 has no native
// time.Duration support.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = duration(v)
	return nil
}

// FileConfig is the YAML configuration schema. Nested sections map onto the
// flag namespace; only non-zero values override.
type FileConfig struct {
	Title  string `yaml:"title"`
	BGG    string `yaml:"bgg"`
	PDF    string `yaml:"pdf"`
	Out    string `yaml:"out"`
	Data   string `yaml:"data"`

	Rules struct {
		Base         string `yaml:"base"`
		Disable      bool   `yaml:"disable"`
		AlsoOverview bool   `yaml:"alsoOverview"`
		MaxImages    int    `yaml:"maxImages"`
		ProbeSize    bool   `yaml:"probeSize"`
	} `yaml:"rules"`

	Politeness struct {
		MinGap      duration `yaml:"minGap"`
		GlobalGap   duration `yaml:"globalGap"`
		FreshWindow duration `yaml:"freshWindow"`
		HardTTL     duration `yaml:"hardTTL"`
		Ceiling     duration `yaml:"ceiling"`
	} `yaml:"politeness"`

	BGGClient struct {
		Timeout  duration `yaml:"timeout"`
		QPS      float64  `yaml:"qps"`
		CacheTTL duration `yaml:"cacheTTL"`
	} `yaml:"bggClient"`

	OCR struct {
		Threshold  float64 `yaml:"threshold"`
		Rasterizer string  `yaml:"rasterizer"`
		Binary     string  `yaml:"binary"`
	} `yaml:"ocr"`

	LLM struct {
		Base  string `yaml:"base"`
		Model string `yaml:"model"`
		Key   string `yaml:"key"`
	} `yaml:"llm"`

	Video struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
		FPS    int `yaml:"fps"`
	} `yaml:"video"`

	Language   string `yaml:"language"`
	ProofSheet bool   `yaml:"proofSheet"`
	Verbose    bool   `yaml:"verbose"`
}

// ApplyConfigFile overlays the YAML file at path into cfg for fields that
// are still unset or at their flag default. Flags should already have been
// parsed; the file supplies defaults while explicit flags win. A missing
// path is not an error so hosts can pass an optional flag straight through.
func ApplyConfigFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	const outDirDefault = "out"

	fillString(&cfg.Title, fc.Title)
	fillString(&cfg.BGGIDOrURL, fc.BGG)
	fillString(&cfg.PDFPath, fc.PDF)
	if (cfg.OutDir == "" || cfg.OutDir == outDirDefault) && fc.Out != "" {
		cfg.OutDir = fc.Out
	}
	fillString(&cfg.DataDir, fc.Data)

	fillString(&cfg.RulesBaseURL, fc.Rules.Base)
	cfg.DisableWeb = cfg.DisableWeb || fc.Rules.Disable
	cfg.AlsoOverview = cfg.AlsoOverview || fc.Rules.AlsoOverview
	fillInt(&cfg.MaxImages, fc.Rules.MaxImages)
	cfg.ProbeRemoteSize = cfg.ProbeRemoteSize || fc.Rules.ProbeSize

	fillDuration(&cfg.MinGap, time.Duration(fc.Politeness.MinGap))
	fillDuration(&cfg.GlobalGap, time.Duration(fc.Politeness.GlobalGap))
	fillDuration(&cfg.FreshWindow, time.Duration(fc.Politeness.FreshWindow))
	fillDuration(&cfg.HardTTL, time.Duration(fc.Politeness.HardTTL))
	fillDuration(&cfg.Ceiling, time.Duration(fc.Politeness.Ceiling))

	fillDuration(&cfg.BGGTimeout, time.Duration(fc.BGGClient.Timeout))
	if cfg.BGGQPS == 0 && fc.BGGClient.QPS > 0 {
		cfg.BGGQPS = fc.BGGClient.QPS
	}
	fillDuration(&cfg.BGGCacheTTL, time.Duration(fc.BGGClient.CacheTTL))

	if cfg.OCRThreshold == 0 && fc.OCR.Threshold > 0 {
		cfg.OCRThreshold = fc.OCR.Threshold
	}
	fillString(&cfg.RasterizerBin, fc.OCR.Rasterizer)
	fillString(&cfg.OCRBin, fc.OCR.Binary)

	fillString(&cfg.LLMBaseURL, fc.LLM.Base)
	fillString(&cfg.LLMModel, fc.LLM.Model)
	fillString(&cfg.LLMAPIKey, fc.LLM.Key)
	fillString(&cfg.Language, fc.Language)

	fillInt(&cfg.Width, fc.Video.Width)
	fillInt(&cfg.Height, fc.Video.Height)
	fillInt(&cfg.FPS, fc.Video.FPS)

	cfg.ProofSheet = cfg.ProofSheet || fc.ProofSheet
	cfg.Verbose = cfg.Verbose || fc.Verbose
	return nil
}

func fillString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func fillInt(dst *int, v int) {
	if *dst == 0 && v > 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 && v > 0 {
		*dst = v
	}
}
