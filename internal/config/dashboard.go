package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical dashboard defaults file.
const DefaultConfigPath = "config/dashboard.defaults.json"

// DashboardConfig holds server settings and the initial values of the
// interactive controls. Every field is optional; the Get* methods supply
// defaults for anything the file omits.
type DashboardConfig struct {
	Listen  *string `json:"listen,omitempty"`
	CSVPath *string `json:"csv_path,omitempty"`

	// Directories CSV paths may be loaded from, including csv_path.
	DataDirs []string `json:"data_dirs,omitempty"`

	// Initial control values; requests may override them.
	DefaultThreshold *float64 `json:"default_threshold,omitempty"`
	DefaultTopN      *int     `json:"default_top_n,omitempty"`

	// Inspector image loading.
	ImageDirs     []string `json:"image_dirs,omitempty"`
	ImageTimeout  *string  `json:"image_timeout,omitempty"` // duration string like "10s"
	MaxImageBytes *int64   `json:"max_image_bytes,omitempty"`

	DBPath  *string `json:"db_path,omitempty"`
	Verbose *bool   `json:"verbose,omitempty"`
}

// EmptyDashboardConfig returns a config with every field unset.
func EmptyDashboardConfig() *DashboardConfig {
	return &DashboardConfig{}
}

// LoadDashboardConfig loads a DashboardConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB.
func LoadDashboardConfig(path string) (*DashboardConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDashboardConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are in range.
func (c *DashboardConfig) Validate() error {
	if c.DefaultThreshold != nil {
		if v := *c.DefaultThreshold; v < 0 || v > 1 {
			return fmt.Errorf("default_threshold must be between 0 and 1, got %f", v)
		}
	}
	if c.DefaultTopN != nil {
		if v := *c.DefaultTopN; v < 1 || v > 200 {
			return fmt.Errorf("default_top_n must be between 1 and 200, got %d", v)
		}
	}
	if c.ImageTimeout != nil && *c.ImageTimeout != "" {
		if _, err := time.ParseDuration(*c.ImageTimeout); err != nil {
			return fmt.Errorf("invalid image_timeout '%s': %w", *c.ImageTimeout, err)
		}
	}
	if c.MaxImageBytes != nil && *c.MaxImageBytes <= 0 {
		return fmt.Errorf("max_image_bytes must be positive, got %d", *c.MaxImageBytes)
	}
	return nil
}

// GetListen returns the listen address or ":8080".
func (c *DashboardConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetCSVPath returns the CSV loaded at startup, "probability_map.csv" by default.
func (c *DashboardConfig) GetCSVPath() string {
	if c.CSVPath == nil {
		return "probability_map.csv"
	}
	return *c.CSVPath
}

// GetDataDirs returns the directories CSV paths may be loaded from. The
// working directory is the default.
func (c *DashboardConfig) GetDataDirs() []string {
	if len(c.DataDirs) == 0 {
		return []string{"."}
	}
	return c.DataDirs
}

// GetDefaultThreshold returns the initial alert threshold.
func (c *DashboardConfig) GetDefaultThreshold() float64 {
	if c.DefaultThreshold == nil {
		return 0.6
	}
	return *c.DefaultThreshold
}

// GetDefaultTopN returns the initial number of highlighted rows.
func (c *DashboardConfig) GetDefaultTopN() int {
	if c.DefaultTopN == nil {
		return 20
	}
	return *c.DefaultTopN
}

// GetImageDirs returns the directories local thumbnails may be read from.
// The working directory is the default.
func (c *DashboardConfig) GetImageDirs() []string {
	if len(c.ImageDirs) == 0 {
		return []string{"."}
	}
	return c.ImageDirs
}

// GetImageTimeout returns the remote thumbnail fetch timeout.
func (c *DashboardConfig) GetImageTimeout() time.Duration {
	if c.ImageTimeout == nil || *c.ImageTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.ImageTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetMaxImageBytes returns the largest thumbnail the inspector will decode.
func (c *DashboardConfig) GetMaxImageBytes() int64 {
	if c.MaxImageBytes == nil {
		return 20 << 20
	}
	return *c.MaxImageBytes
}

// GetDBPath returns the session database path. The default keeps it in memory.
func (c *DashboardConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return ":memory:"
	}
	return *c.DBPath
}

// GetVerbose reports whether debug logging is enabled.
func (c *DashboardConfig) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}
