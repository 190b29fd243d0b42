// Package config holds the server and pipeline settings.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Resize policies.
const (
	ResizePad  = "pad"
	ResizeCrop = "crop"
)

// Config is loaded from a JSON file on top of Default. Fields omitted from
// the file keep their default values.
type Config struct {
	// Network input size.
	ImgHeight int `json:"img_height"`
	ImgWidth  int `json:"img_width"`

	// ResizePolicy is "pad" (letterbox any input) or "crop" (center crop
	// inputs of exactly SourceHeight x SourceWidth).
	ResizePolicy string `json:"resize_policy"`
	SourceHeight int    `json:"source_height"`
	SourceWidth  int    `json:"source_width"`
	CropHeight   int    `json:"crop_height"`
	CropWidth    int    `json:"crop_width"`
	FillColor    [3]int `json:"fill_color"`

	Mean         [3]float32 `json:"mean"`
	Std          [3]float32 `json:"std"`
	BgColorRange [3][2]int  `json:"bg_color_range"`

	GridSize  int     `json:"grid_size"`
	VoxelSize float32 `json:"voxel_size"`
	Threshold float32 `json:"threshold"`

	ModelPath       string `json:"model_path"`
	MetadataPath    string `json:"metadata_path"`
	OnnxLibraryPath string `json:"onnx_library_path"`

	DBPath          string `json:"db_path"`
	RedisAddress    string `json:"redis_address"`
	RedisTTLSeconds int    `json:"redis_ttl_seconds"`
	SentryDSN       string `json:"sentry_dsn"`

	MaxUploadBytes int64  `json:"max_upload_bytes"`
	MaxViews       int    `json:"max_views"`
	// MaxImagePixels caps width*height of each uploaded image as declared
	// by its header, checked before the pixels are decoded.
	MaxImagePixels int    `json:"max_image_pixels"`
	Port           int    `json:"port"`
	LogLevel       string `json:"log_level"`
	Release        bool   `json:"release"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		ImgHeight:       224,
		ImgWidth:        224,
		ResizePolicy:    ResizePad,
		SourceHeight:    224,
		SourceWidth:     224,
		CropHeight:      128,
		CropWidth:       128,
		FillColor:       [3]int{240, 240, 240},
		Mean:            [3]float32{0.5, 0.5, 0.5},
		Std:             [3]float32{0.5, 0.5, 0.5},
		BgColorRange:    [3][2]int{{240, 240}, {240, 240}, {240, 240}},
		GridSize:        32,
		VoxelSize:       1.0,
		Threshold:       0.5,
		ModelPath:       filepath.Join("models", "model_embedded.onnx"),
		MetadataPath:    filepath.Join("models", "model_metadata.json"),
		DBPath:          "swinvox.db",
		RedisTTLSeconds: 3600,
		MaxUploadBytes:  32 << 20,
		MaxViews:        24,
		MaxImagePixels:  4096 * 4096,
		Port:            8080,
		LogLevel:        "info",
	}
}

// Load reads a JSON config file. The file must have a .json extension
// and be at most 1 MiB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"img_height", c.ImgHeight},
		{"img_width", c.ImgWidth},
		{"grid_size", c.GridSize},
		{"max_views", c.MaxViews},
		{"max_image_pixels", c.MaxImagePixels},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.v)
		}
	}

	switch c.ResizePolicy {
	case ResizePad:
	case ResizeCrop:
		if c.SourceHeight <= 0 || c.SourceWidth <= 0 || c.CropHeight <= 0 || c.CropWidth <= 0 {
			return fmt.Errorf("crop policy needs positive source and crop sizes")
		}
		if c.CropHeight > c.SourceHeight || c.CropWidth > c.SourceWidth {
			return fmt.Errorf("crop %dx%d is larger than source %dx%d",
				c.CropWidth, c.CropHeight, c.SourceWidth, c.SourceHeight)
		}
	default:
		return fmt.Errorf("unknown resize_policy %q", c.ResizePolicy)
	}

	for i, v := range c.FillColor {
		if v < 0 || v > 255 {
			return fmt.Errorf("fill_color[%d] must be in [0,255], got %d", i, v)
		}
	}
	for i, s := range c.Std {
		if s == 0 || math.IsNaN(float64(s)) {
			return fmt.Errorf("std[%d] must be non-zero, got %v", i, s)
		}
	}
	for i, r := range c.BgColorRange {
		if r[0] < 0 || r[1] > 255 || r[0] > r[1] {
			return fmt.Errorf("bg_color_range[%d] must satisfy 0 <= min <= max <= 255, got %v", i, r)
		}
	}

	if !(c.VoxelSize > 0) {
		return fmt.Errorf("voxel_size must be positive, got %v", c.VoxelSize)
	}
	if !(c.Threshold >= 0 && c.Threshold <= 1) {
		return fmt.Errorf("threshold must be between 0 and 1, got %v", c.Threshold)
	}
	if c.RedisTTLSeconds < 0 {
		return fmt.Errorf("redis_ttl_seconds must be non-negative, got %d", c.RedisTTLSeconds)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1,65535], got %d", c.Port)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
