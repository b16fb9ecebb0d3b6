package models

import "fmt"

// PortConfig holds the serial parameters stored for a port. A config exists
// independently of whether the port is currently monitored.
type PortConfig struct {
	Name     string  `json:"name" yaml:"name"`
	BaudRate int     `json:"baudrate" yaml:"baudrate"`
	ByteSize int     `json:"bytesize" yaml:"bytesize"`
	Parity   string  `json:"parity" yaml:"parity"`
	StopBits float64 `json:"stopbits" yaml:"stopbits"`
}

// DefaultPortConfig returns the 9600/8/N/1 defaults used when a port has
// never been configured.
func DefaultPortConfig() PortConfig {
	return PortConfig{
		BaudRate: 9600,
		ByteSize: 8,
		Parity:   "N",
		StopBits: 1,
	}
}

// DisplayName combines a device identifier with its stored label.
func (c PortConfig) DisplayName(device string) string {
	if c.Name != "" {
		return fmt.Sprintf("%s (%s)", device, c.Name)
	}
	return device
}

// PortInfo describes one port as reported to clients by the port listing.
type PortInfo struct {
	Device      string `json:"device"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Active      bool   `json:"active"`
}
