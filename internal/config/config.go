// Package config defines the CLI and YAML configuration surface
// (spec.md §6), grounded on kissutil.go's pflag.StringP/IntP/BoolP
// flag declarations and deviceid.go's gopkg.in/yaml.v3 struct tags,
// layered the same way: flags override whatever the YAML file (if
// any) set, which in turn overrides the built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the full startup configuration consumed by cmd/axterm
// (spec.md §6).
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Callsign string `yaml:"callsign"`

	Window int `yaml:"window"` // K, default 4, [1,7] mod-8 or [1,63] mod-128
	N2     int `yaml:"n2"`     // retry count, default 10
	T3     time.Duration `yaml:"t3"`

	PaclenMin     int `yaml:"paclen_min"`
	PaclenMax     int `yaml:"paclen_max"`
	PaclenDefault int `yaml:"paclen_default"`

	AutoNegotiateCapabilities bool `yaml:"auto_negotiate_capabilities"`
	AXDPEnabled               bool `yaml:"axdp_enabled"`

	CompressionEnabled        bool   `yaml:"compression_enabled"`
	CompressionAlgorithm      string `yaml:"compression_algorithm"` // lz4|deflate|none
	MaxDecompressedPayload    uint32 `yaml:"max_decompressed_payload"`
	AbsoluteMaxDecompressedLen uint32 `yaml:"-"` // fixed ceiling, not user-overridable

	ConfigFile string `yaml:"-"`
}

// AbsoluteMaxDecompressedLen is the hard ceiling MaxDecompressedPayload
// is clamped to regardless of configuration (spec.md §6).
const absoluteMaxDecompressedLen = 1 << 20 // 1 MiB

// Default returns the spec's documented defaults.
func Default() Config {
	return Config{
		Host:     "localhost",
		Port:     8001,
		Callsign: "",

		Window: 4,
		N2:     10,
		T3:     60 * time.Second,

		PaclenMin:     32,
		PaclenMax:     256,
		PaclenDefault: 128,

		AutoNegotiateCapabilities: true,
		AXDPEnabled:               true,

		CompressionEnabled:         true,
		CompressionAlgorithm:       "lz4",
		MaxDecompressedPayload:     4096,
		AbsoluteMaxDecompressedLen: absoluteMaxDecompressedLen,
	}
}

// Parse builds a Config from the default, an optional YAML file
// (loaded first if -config-file is present in args), and finally CLI
// flags (which always win), mirroring kissutil.go's flag declarations.
func Parse(args []string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("axterm", pflag.ContinueOnError)

	configFile := fs.StringP("config-file", "c", "", "Optional YAML configuration file")
	host := fs.StringP("host", "h", cfg.Host, "Hostname of the KISS TNC")
	port := fs.IntP("port", "p", cfg.Port, "TCP port of the KISS TNC")
	callsign := fs.StringP("callsign", "C", cfg.Callsign, "Own station callsign-SSID")
	window := fs.IntP("window", "k", cfg.Window, "Connected-mode window size K")
	n2 := fs.IntP("n2", "n", cfg.N2, "Maximum T1 retries before link failure")
	t3 := fs.DurationP("t3", "t", cfg.T3, "T3 idle-link poll interval")
	paclenMin := fs.Int("paclen-min", cfg.PaclenMin, "Minimum adaptive paclen")
	paclenMax := fs.Int("paclen-max", cfg.PaclenMax, "Maximum adaptive paclen")
	paclenDefault := fs.Int("paclen-default", cfg.PaclenDefault, "Initial paclen")
	autoNegotiate := fs.Bool("auto-negotiate-capabilities", cfg.AutoNegotiateCapabilities, "Negotiate AXDP capabilities on connect")
	axdpEnabled := fs.Bool("axdp-enabled", cfg.AXDPEnabled, "Enable AXDP extensions")
	compressionEnabled := fs.Bool("compression-enabled", cfg.CompressionEnabled, "Enable transfer compression")
	compressionAlgorithm := fs.String("compression-algorithm", cfg.CompressionAlgorithm, "Compression algorithm: lz4|deflate|none")
	maxDecompressed := fs.Uint32("max-decompressed-payload", cfg.MaxDecompressedPayload, "Advertised max decompressed chunk size")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage of axterm:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configFile != "" {
		fileCfg, err := loadYAML(*configFile)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
		cfg.ConfigFile = *configFile
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "callsign":
			cfg.Callsign = *callsign
		case "window":
			cfg.Window = *window
		case "n2":
			cfg.N2 = *n2
		case "t3":
			cfg.T3 = *t3
		case "paclen-min":
			cfg.PaclenMin = *paclenMin
		case "paclen-max":
			cfg.PaclenMax = *paclenMax
		case "paclen-default":
			cfg.PaclenDefault = *paclenDefault
		case "auto-negotiate-capabilities":
			cfg.AutoNegotiateCapabilities = *autoNegotiate
		case "axdp-enabled":
			cfg.AXDPEnabled = *axdpEnabled
		case "compression-enabled":
			cfg.CompressionEnabled = *compressionEnabled
		case "compression-algorithm":
			cfg.CompressionAlgorithm = *compressionAlgorithm
		case "max-decompressed-payload":
			cfg.MaxDecompressedPayload = *maxDecompressed
		}
	})

	cfg.AbsoluteMaxDecompressedLen = absoluteMaxDecompressedLen
	if cfg.MaxDecompressedPayload > cfg.AbsoluteMaxDecompressedLen {
		cfg.MaxDecompressedPayload = cfg.AbsoluteMaxDecompressedLen
	}

	return cfg, cfg.Validate()
}

// Validate checks the window bounds named in spec.md §6: K in [1,7]
// for mod-8 operation (the only modulo this config surface exposes;
// mod-128 sessions are negotiated per-link, not configured globally).
func (c Config) Validate() error {
	if c.Window < 1 || c.Window > 7 {
		return fmt.Errorf("window must be in [1,7], got %d", c.Window)
	}
	if c.PaclenMin <= 0 || c.PaclenMax < c.PaclenMin {
		return fmt.Errorf("invalid paclen bounds [%d,%d]", c.PaclenMin, c.PaclenMax)
	}
	if c.Callsign == "" {
		return fmt.Errorf("callsign is required")
	}
	return nil
}

func loadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
