// Package config resolves the modem's runtime configuration: role,
// sample rate, audio devices, and serial endpoint. A YAML file supplies
// defaults; command-line flags parsed with pflag override it.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Role mirrors fsk.Role without importing internal/fsk, so config stays
// a leaf package.
type Role string

const (
	RoleOriginate Role = "originate"
	RoleAnswer    Role = "answer"
)

// File is the on-disk YAML configuration; every field also has a
// corresponding CLI flag that overrides it when set.
type File struct {
	Role        Role   `yaml:"role"`
	SampleRate  int    `yaml:"sample_rate"`
	InputDev    string `yaml:"input_device"`
	OutputDev   string `yaml:"output_device"`
	SerialDev   string `yaml:"serial_device"` // Windows COM port, or a Unix device opened instead of a pseudo-terminal
	SymlinkPTY  string `yaml:"symlink_pty"`   // Unix only, default /tmp/kisstnc-equivalent
	MonitorAddr string `yaml:"monitor_addr"`
	LogLevel    string `yaml:"log_level"`
	TUI         bool   `yaml:"tui"`
}

// Defaults returns the configuration used when neither a config file nor
// flags specify a value.
func Defaults() File {
	return File{
		Role:        RoleOriginate,
		SampleRate:  48000,
		MonitorAddr: ":7521",
		SymlinkPTY:  "/tmp/v21modem",
		LogLevel:    "info",
	}
}

// Load reads a YAML config file if path is non-empty, and always parses
// os.Args-derived flags on top of it. Flags explicitly set on the
// command line win over the file; the file wins over Defaults().
func Load(path string, args []string) (File, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	fs := pflag.NewFlagSet("v21modem", pflag.ContinueOnError)
	answer := fs.BoolP("answer", "a", cfg.Role == RoleAnswer, "answer an incoming call instead of originating one")
	sampleRate := fs.IntP("sample-rate", "r", cfg.SampleRate, "audio sample rate in Hz; must be a multiple of 300")
	rxDev := fs.StringP("rxdev", "i", cfg.InputDev, "input audio device name (empty selects the host default)")
	txDev := fs.StringP("txdev", "o", cfg.OutputDev, "output audio device name (empty selects the host default)")
	serDev := fs.StringP("serdev", "s", cfg.SerialDev, "serial endpoint name; a Windows COM port, or a Unix device to open directly instead of allocating a pseudo-terminal")
	symlink := fs.String("symlink", cfg.SymlinkPTY, "path to maintain as a friendly symlink to the allocated pseudo-terminal (Unix only, empty disables)")
	monitorAddr := fs.String("monitor-addr", cfg.MonitorAddr, "address for the /metrics and /ws status endpoints, empty disables")
	logLevel := fs.String("log-level", cfg.LogLevel, "debug, info, warn, or error")
	tuiFlag := fs.Bool("tui", cfg.TUI, "show a live terminal status screen instead of just logging")
	configPath := fs.StringP("config", "c", path, "path to a YAML config file")
	_ = configPath // already consumed by the caller; kept so --help documents it

	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("config: parse flags: %w", err)
	}

	if *answer {
		cfg.Role = RoleAnswer
	} else if fs.Changed("answer") {
		cfg.Role = RoleOriginate
	}
	cfg.SampleRate = *sampleRate
	cfg.InputDev = *rxDev
	cfg.OutputDev = *txDev
	cfg.SerialDev = *serDev
	cfg.SymlinkPTY = *symlink
	cfg.MonitorAddr = *monitorAddr
	cfg.LogLevel = *logLevel
	cfg.TUI = *tuiFlag

	return cfg, cfg.Validate()
}

// Validate checks the invariants that make a configuration unusable:
// an out-of-range sample rate or an unrecognized role should fail fast
// at startup rather than surface as a confusing runtime error.
func (f File) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate%300 != 0 {
		return fmt.Errorf("config: sample rate %d is not a positive multiple of 300", f.SampleRate)
	}
	if f.Role != RoleOriginate && f.Role != RoleAnswer {
		return fmt.Errorf("config: role %q must be %q or %q", f.Role, RoleOriginate, RoleAnswer)
	}
	return nil
}
