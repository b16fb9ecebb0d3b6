// Package config provides XML-based configuration for the serial hub. A
// missing config file is created with defaults on first start so the hub
// can run on an air-gapped machine without hand editing.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// AppConfig is the root XML configuration structure.
type AppConfig struct {
	XMLName xml.Name `xml:"SerialHub"`

	Server   ServerConfig   `xml:"Server"`
	Storage  StorageConfig  `xml:"Storage"`
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
}

// StorageConfig locates the persisted state files.
type StorageConfig struct {
	DataDirectory      string `xml:"DataDirectory"`
	HistoryFile        string `xml:"HistoryFile"`
	PortSettingsFile   string `xml:"PortSettingsFile"`
	PatternLibraryFile string `xml:"PatternLibraryFile"`
	ArchiveDirectory   string `xml:"ArchiveDirectory"`
	EnableArchive      bool   `xml:"EnableArchive"`
}

// AdvancedConfig contains tuning options.
type AdvancedConfig struct {
	EnableRequestLogging bool `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         54321,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			HistoryFile:        "./data/send_history.json",
			PortSettingsFile:   "./data/comsettings.yaml",
			PatternLibraryFile: "./data/code_library.txt",
			ArchiveDirectory:   "./data/archive",
			EnableArchive:      true,
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from an XML file, writing the defaults
// when no file exists yet.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &AppConfig{}
	if err := xml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration as indented XML.
func (c *AppConfig) Save(configPath string) error {
	data, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out := append([]byte(xml.Header), data...)
	return os.WriteFile(configPath, out, 0644)
}

// EnsureDirectories creates the data directories the hub writes into.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		filepath.Dir(c.Storage.HistoryFile),
		filepath.Dir(c.Storage.PortSettingsFile),
	}
	if c.Storage.EnableArchive {
		dirs = append(dirs, c.Storage.ArchiveDirectory)
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// GetServerAddr returns the listen address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// applyDefaults fills gaps left by hand-edited config files.
func (c *AppConfig) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.BindAddress == "" {
		c.Server.BindAddress = def.Server.BindAddress
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Storage.DataDirectory == "" {
		c.Storage.DataDirectory = def.Storage.DataDirectory
	}
	if c.Storage.HistoryFile == "" {
		c.Storage.HistoryFile = def.Storage.HistoryFile
	}
	if c.Storage.PortSettingsFile == "" {
		c.Storage.PortSettingsFile = def.Storage.PortSettingsFile
	}
	if c.Storage.PatternLibraryFile == "" {
		c.Storage.PatternLibraryFile = def.Storage.PatternLibraryFile
	}
	if c.Storage.ArchiveDirectory == "" {
		c.Storage.ArchiveDirectory = def.Storage.ArchiveDirectory
	}
}
