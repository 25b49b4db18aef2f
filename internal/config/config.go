// Package config loads the sections service configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/lidar/serialdriver"
)

// DefaultConfigPath is where the service looks for its config when no
// -config flag is given.
const DefaultConfigPath = "config/sections.json"

// Driver names accepted in the driver field.
const (
	DriverSerial = "serial"
	DriverUDP    = "udp"
	DriverPCAP   = "pcap"
)

// ErrInvalidDriver is returned by Validate for an unknown driver name.
var ErrInvalidDriver = errors.New("invalid driver")

// Config is the root configuration. Unset fields fall back to the defaults
// returned by the Get* methods, so partial files are safe.
type Config struct {
	Driver *string `json:"driver,omitempty"` // serial, udp or pcap

	// Serial devices. An empty port list enumerates the system's ports.
	SerialPorts []string                  `json:"serial_ports,omitempty"`
	Serial      *serialdriver.PortOptions `json:"serial,omitempty"`

	// UDP listeners.
	UDPAddrs    []string `json:"udp_addrs,omitempty"`
	UDPRcvBuf   *int     `json:"udp_rcvbuf,omitempty"`
	ForwardAddr *string  `json:"forward_addr,omitempty"`

	// Capture replay.
	PCAPFiles   []string `json:"pcap_files,omitempty"`
	PCAPUDPPort *int     `json:"pcap_udp_port,omitempty"`

	// Initial point filter. Zero max means unbounded; a direction window is
	// only applied when both ends are set.
	FilterMinLen  *int `json:"filter_min_len,omitempty"`
	FilterMaxLen  *int `json:"filter_max_len,omitempty"`
	FilterFromDir *int `json:"filter_from_dir,omitempty"`
	FilterToDir   *int `json:"filter_to_dir,omitempty"`

	// Supervision.
	ReopenBackoff *string `json:"reopen_backoff,omitempty"` // duration string like "2s"
	MaxOpens      *int    `json:"max_opens,omitempty"`

	// Sinks. An empty path or broker disables the sink.
	SQLitePath    *string `json:"sqlite_path,omitempty"`
	MQTTBroker    *string `json:"mqtt_broker,omitempty"`
	MQTTTopic     *string `json:"mqtt_topic,omitempty"`
	MQTTClientID  *string `json:"mqtt_client_id,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "1m"

	AdminListen *string `json:"admin_listen,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// Load reads a Config from a JSON file. The file must have a .json
// extension and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	switch c.GetDriver() {
	case DriverSerial, DriverUDP, DriverPCAP:
	default:
		return fmt.Errorf("%w %q: expected serial, udp or pcap", ErrInvalidDriver, c.GetDriver())
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}

	if c.UDPRcvBuf != nil && *c.UDPRcvBuf < 0 {
		return fmt.Errorf("udp_rcvbuf must be non-negative, got %d", *c.UDPRcvBuf)
	}
	if c.PCAPUDPPort != nil && (*c.PCAPUDPPort < 0 || *c.PCAPUDPPort > 65535) {
		return fmt.Errorf("pcap_udp_port must be between 0 and 65535, got %d", *c.PCAPUDPPort)
	}
	if c.GetDriver() == DriverPCAP && len(c.PCAPFiles) == 0 {
		return errors.New("pcap driver needs at least one pcap_files entry")
	}

	for name, v := range map[string]*int{
		"filter_min_len":  c.FilterMinLen,
		"filter_max_len":  c.FilterMaxLen,
		"filter_from_dir": c.FilterFromDir,
		"filter_to_dir":   c.FilterToDir,
	} {
		if v != nil && (*v < 0 || *v > math.MaxUint16) {
			return fmt.Errorf("%s must be between 0 and %d, got %d", name, math.MaxUint16, *v)
		}
	}
	if hi := c.GetFilterMaxLen(); hi != 0 && hi < c.GetFilterMinLen() {
		return fmt.Errorf("filter_max_len %d is below filter_min_len %d", hi, c.GetFilterMinLen())
	}
	if (c.FilterFromDir == nil) != (c.FilterToDir == nil) {
		return errors.New("filter_from_dir and filter_to_dir must be set together")
	}

	for name, v := range map[string]*string{
		"reopen_backoff": c.ReopenBackoff,
		"stats_interval": c.StatsInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if c.MaxOpens != nil && *c.MaxOpens < 0 {
		return fmt.Errorf("max_opens must be non-negative, got %d", *c.MaxOpens)
	}
	return nil
}

// GetDriver returns the driver name, serial by default.
func (c *Config) GetDriver() string {
	if c.Driver == nil || *c.Driver == "" {
		return DriverSerial
	}
	return *c.Driver
}

// GetSerialOptions returns the serial port options with defaults applied.
func (c *Config) GetSerialOptions() serialdriver.PortOptions {
	var opts serialdriver.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	if n, err := opts.Normalise(); err == nil {
		return n
	}
	return opts
}

// GetUDPRcvBuf returns the requested socket receive buffer.
func (c *Config) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil || *c.UDPRcvBuf == 0 {
		return 4 << 20 // default
	}
	return *c.UDPRcvBuf
}

// GetForwardAddr returns the UDP forward address, or "" for none.
func (c *Config) GetForwardAddr() string {
	if c.ForwardAddr == nil {
		return ""
	}
	return *c.ForwardAddr
}

// GetPCAPUDPPort returns the replay port filter, 0 for none.
func (c *Config) GetPCAPUDPPort() int {
	if c.PCAPUDPPort == nil {
		return 0
	}
	return *c.PCAPUDPPort
}

func (c *Config) GetFilterMinLen() int {
	if c.FilterMinLen == nil {
		return 0
	}
	return *c.FilterMinLen
}

func (c *Config) GetFilterMaxLen() int {
	if c.FilterMaxLen == nil {
		return 0
	}
	return *c.FilterMaxLen
}

// Filter builds the initial point filter.
func (c *Config) Filter() sections.Filter {
	var filters []sections.Filter
	if lo, hi := c.GetFilterMinLen(), c.GetFilterMaxLen(); lo != 0 || hi != 0 {
		filters = append(filters, sections.LengthWindow(uint16(lo), uint16(hi)))
	}
	if c.FilterFromDir != nil && c.FilterToDir != nil {
		filters = append(filters, sections.DirWindow(uint16(*c.FilterFromDir), uint16(*c.FilterToDir)))
	}
	if len(filters) == 0 {
		return sections.AcceptAll
	}
	return sections.All(filters...)
}

// GetReopenBackoff returns the pause before reopening a failed device.
func (c *Config) GetReopenBackoff() time.Duration {
	return parseDurationOr(c.ReopenBackoff, 2*time.Second)
}

// GetMaxOpens returns the open attempt budget per device, 0 for unlimited.
// A capture file ends, so the pcap driver replays each file once unless
// max_opens says otherwise.
func (c *Config) GetMaxOpens() int {
	if c.MaxOpens == nil {
		if c.GetDriver() == DriverPCAP {
			return 1
		}
		return 0
	}
	return *c.MaxOpens
}

func (c *Config) GetSQLitePath() string {
	if c.SQLitePath == nil {
		return ""
	}
	return *c.SQLitePath
}

func (c *Config) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

func (c *Config) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "lidar/sections" // default
	}
	return *c.MQTTTopic
}

func (c *Config) GetMQTTClientID() string {
	if c.MQTTClientID == nil || *c.MQTTClientID == "" {
		return "lidar-sections" // default
	}
	return *c.MQTTClientID
}

// GetStatsInterval returns how often section throughput is logged.
func (c *Config) GetStatsInterval() time.Duration {
	return parseDurationOr(c.StatsInterval, time.Minute)
}

// GetAdminListen returns the admin HTTP listen address.
func (c *Config) GetAdminListen() string {
	if c.AdminListen == nil || *c.AdminListen == "" {
		return "127.0.0.1:8080" // default
	}
	return *c.AdminListen
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}
