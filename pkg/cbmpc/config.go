package cbmpc

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/logging"
)

// EngineKind selects the engine behind a Library.
type EngineKind string

const (
	// EngineAuto uses libcbmpc when it is linked in and the soft engine
	// otherwise.
	EngineAuto EngineKind = "auto"
	// EngineNative requires libcbmpc (build with cgo and the cbmpc tag).
	EngineNative EngineKind = "native"
	// EngineSoft is the pure-Go semi-honest engine. Development only.
	EngineSoft EngineKind = "soft"
)

const (
	DefaultReceiveTimeout = 30 * time.Second
	DefaultMaxFrameSize   = 16 << 20
)

// Config holds the options of Open. The zero value is usable and means
// EngineAuto with logging discarded.
type Config struct {
	Engine EngineKind

	// LogLevel is one of debug, info, warn or error. When Logger is nil and
	// LogLevel is set, the library logs as text to stderr at that level.
	LogLevel string

	// PaillierBits sets the Paillier modulus size of the soft engine. Zero
	// keeps the engine default.
	PaillierBits int

	Transport TransportConfig

	// Logger overrides LogLevel. It is never read from a file.
	Logger logging.Logger `toml:"-"`
}

// TransportConfig carries the settings used by the network transports.
type TransportConfig struct {
	// ReceiveTimeout bounds each blocking receive. Zero disables the bound.
	ReceiveTimeout time.Duration
	// MaxFrameSize is the largest message a transport accepts, in bytes.
	MaxFrameSize int
}

// DefaultConfig returns the configuration LoadConfig starts from.
func DefaultConfig() Config {
	return Config{
		Engine:   EngineAuto,
		LogLevel: "",
		Transport: TransportConfig{
			ReceiveTimeout: DefaultReceiveTimeout,
			MaxFrameSize:   DefaultMaxFrameSize,
		},
	}
}

type fileConfig struct {
	Engine       string `toml:"engine"`
	LogLevel     string `toml:"log_level"`
	PaillierBits int    `toml:"paillier_bits"`
	Transport    struct {
		ReceiveTimeout string `toml:"receive_timeout"`
		MaxFrameSize   int    `toml:"max_frame_size"`
	} `toml:"transport"`
}

// LoadConfig reads a TOML file on top of DefaultConfig. Keys absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load cbmpc config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load cbmpc config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("engine") {
		cfg.Engine = EngineKind(strings.ToLower(strings.TrimSpace(raw.Engine)))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("paillier_bits") {
		cfg.PaillierBits = raw.PaillierBits
	}
	if meta.IsDefined("transport", "receive_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Transport.ReceiveTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse transport.receive_timeout: %w", err)
		}
		cfg.Transport.ReceiveTimeout = d
	}
	if meta.IsDefined("transport", "max_frame_size") {
		cfg.Transport.MaxFrameSize = raw.Transport.MaxFrameSize
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Engine {
	case "", EngineAuto, EngineNative, EngineSoft:
	default:
		return fmt.Errorf("cbmpc config: unknown engine %q", c.Engine)
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("cbmpc config: %w", err)
		}
	}
	if c.PaillierBits < 0 {
		return fmt.Errorf("cbmpc config: negative paillier_bits %d", c.PaillierBits)
	}
	if c.Transport.ReceiveTimeout < 0 {
		return fmt.Errorf("cbmpc config: negative receive_timeout %s", c.Transport.ReceiveTimeout)
	}
	if c.Transport.MaxFrameSize < 0 {
		return fmt.Errorf("cbmpc config: negative max_frame_size %d", c.Transport.MaxFrameSize)
	}
	return nil
}

func (c Config) logger() logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.LogLevel == "" {
		return logging.Discard()
	}
	lvl, _ := logging.ParseLevel(c.LogLevel)
	return logging.NewText(lvl)
}
