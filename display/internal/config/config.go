package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"ledMatrix/display/internal/entity"
	"ledMatrix/pkg/logging"
	"ledMatrix/pkg/transport"
)

const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"

	DriverHeadless = "headless"
	DriverHUB75    = "hub75"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Sources SourcesConfig  `yaml:"sources"`
	Receive ReceiveConfig  `yaml:"receive"`
	Panel   PanelConfig    `yaml:"panel"`
	Button  ButtonConfig   `yaml:"button"`
	HTTP    HTTPConfig     `yaml:"http"`
	Report  ReportConfig   `yaml:"report"`
	Log     logging.Config `yaml:"log"`
}

type SourcesConfig struct {
	Primary   string `yaml:"primary" env:"SOURCE_PRIMARY" env-default:"tcp://localhost:5555"`
	Secondary string `yaml:"secondary" env:"SOURCE_SECONDARY" env-default:"tcp://localhost:5556"`
	Default   string `yaml:"default" env:"SOURCE_DEFAULT" env-default:"primary"`
}

type ReceiveConfig struct {
	Topic       string        `yaml:"topic" env:"FRAME_TOPIC" env-default:"/frames"`
	Timeout     time.Duration `yaml:"timeout" env:"RECEIVE_TIMEOUT" env-default:"1s"`
	ErrorPolicy string        `yaml:"error_policy" env:"RECEIVE_ERROR_POLICY" env-default:"continue"`
	MaxErrors   int           `yaml:"max_errors" env:"RECEIVE_MAX_ERRORS" env-default:"10"`
}

type PanelConfig struct {
	Width       int           `yaml:"width" env:"PANEL_WIDTH" env-default:"128"`
	Height      int           `yaml:"height" env:"PANEL_HEIGHT" env-default:"64"`
	Driver      string        `yaml:"driver" env:"PANEL_DRIVER" env-default:"headless"`
	RefreshHz   int           `yaml:"refresh_hz" env:"PANEL_REFRESH_HZ" env-default:"120"`
	SwapTimeout time.Duration `yaml:"swap_timeout" env:"PANEL_SWAP_TIMEOUT" env-default:"100ms"`
	Scaler      string        `yaml:"scaler" env:"PANEL_SCALER" env-default:"catmull-rom"`
	Chip        string        `yaml:"chip" env:"PANEL_CHIP" env-default:"gpiochip0"`
	BitPlanes   int           `yaml:"bit_planes" env:"PANEL_BIT_PLANES" env-default:"1"`
	RowTime     time.Duration `yaml:"row_time" env:"PANEL_ROW_TIME" env-default:"80us"`
	Pins        PinsConfig    `yaml:"pins"`
}

// PinsConfig is the HUB75 wiring as line offsets on Chip. Defaults follow
// the common "regular" Raspberry Pi adapter wiring.
type PinsConfig struct {
	R1  int `yaml:"r1" env:"PANEL_PIN_R1" env-default:"11"`
	G1  int `yaml:"g1" env:"PANEL_PIN_G1" env-default:"27"`
	B1  int `yaml:"b1" env:"PANEL_PIN_B1" env-default:"7"`
	R2  int `yaml:"r2" env:"PANEL_PIN_R2" env-default:"8"`
	G2  int `yaml:"g2" env:"PANEL_PIN_G2" env-default:"9"`
	B2  int `yaml:"b2" env:"PANEL_PIN_B2" env-default:"10"`
	CLK int `yaml:"clk" env:"PANEL_PIN_CLK" env-default:"17"`
	OE  int `yaml:"oe" env:"PANEL_PIN_OE" env-default:"18"`
	LAT int `yaml:"lat" env:"PANEL_PIN_LAT" env-default:"4"`
	A   int `yaml:"a" env:"PANEL_PIN_A" env-default:"22"`
	B   int `yaml:"b" env:"PANEL_PIN_B" env-default:"23"`
	C   int `yaml:"c" env:"PANEL_PIN_C" env-default:"24"`
	D   int `yaml:"d" env:"PANEL_PIN_D" env-default:"25"`
	E   int `yaml:"e" env:"PANEL_PIN_E" env-default:"15"`
}

type ButtonConfig struct {
	Enabled bool          `yaml:"enabled" env:"BUTTON_ENABLED" env-default:"false"`
	Chip    string        `yaml:"chip" env:"BUTTON_CHIP" env-default:"gpiochip0"`
	Offset  int           `yaml:"offset" env:"BUTTON_OFFSET" env-default:"21"`
	Window  time.Duration `yaml:"debounce_window" env:"DEBOUNCE_WINDOW" env-default:"20ms"`
	Settle  time.Duration `yaml:"debounce_settle" env:"DEBOUNCE_SETTLE" env-default:"10ms"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
}

type ReportConfig struct {
	RedisAddr string        `yaml:"redis_addr" env:"REPORT_REDIS_ADDR"`
	Key       string        `yaml:"key" env:"REPORT_KEY" env-default:"ledmatrix:report"`
	TTL       time.Duration `yaml:"ttl" env:"REPORT_TTL" env-default:"24h"`
}

// New reads the YAML file at path (environment overrides it), or only the
// environment when path is empty, and validates the result.
func New(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustNew(path string) *Config {
	cfg, err := New(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.Sources.Primary == "" || c.Sources.Secondary == "" {
		return fmt.Errorf("%w: both sources are required", ErrInvalid)
	}
	if c.Sources.Primary == c.Sources.Secondary {
		return fmt.Errorf("%w: sources must differ", ErrInvalid)
	}
	for _, address := range []string{c.Sources.Primary, c.Sources.Secondary} {
		if _, err := transport.SchemeOf(address); err != nil {
			return fmt.Errorf("%w: source: %v", ErrInvalid, err)
		}
	}
	if !entity.Source(c.Sources.Default).Valid() {
		return fmt.Errorf("%w: default source %q", ErrInvalid, c.Sources.Default)
	}

	if c.Receive.Topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalid)
	}
	if c.Receive.Timeout <= 0 {
		return fmt.Errorf("%w: receive timeout must be positive", ErrInvalid)
	}
	switch c.Receive.ErrorPolicy {
	case PolicyContinue:
	case PolicyAbort:
		if c.Receive.MaxErrors < 1 {
			return fmt.Errorf("%w: abort policy needs max_errors >= 1", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: error policy %q", ErrInvalid, c.Receive.ErrorPolicy)
	}

	if c.Panel.Width <= 0 || c.Panel.Height <= 0 {
		return fmt.Errorf("%w: panel size %dx%d", ErrInvalid, c.Panel.Width, c.Panel.Height)
	}
	if c.Panel.RefreshHz <= 0 {
		return fmt.Errorf("%w: refresh rate must be positive", ErrInvalid)
	}
	if c.Panel.SwapTimeout <= 0 {
		return fmt.Errorf("%w: swap timeout must be positive", ErrInvalid)
	}
	switch c.Panel.Driver {
	case DriverHeadless:
	case DriverHUB75:
		if c.Panel.Height%2 != 0 || c.Panel.Height > 64 {
			return fmt.Errorf("%w: hub75 height must be even and at most 64", ErrInvalid)
		}
		if c.Panel.BitPlanes < 1 || c.Panel.BitPlanes > 8 {
			return fmt.Errorf("%w: bit planes must be 1-8", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: panel driver %q", ErrInvalid, c.Panel.Driver)
	}

	if c.Button.Enabled && c.Button.Window < 0 {
		return fmt.Errorf("%w: negative debounce window", ErrInvalid)
	}

	return nil
}

// Address returns the address configured for a source name.
func (c *Config) Address(source entity.Source) (string, bool) {
	switch source {
	case entity.SourcePrimary:
		return c.Sources.Primary, true
	case entity.SourceSecondary:
		return c.Sources.Secondary, true
	default:
		return "", false
	}
}

func (c *Config) DefaultAddress() string {
	address, _ := c.Address(entity.Source(c.Sources.Default))
	return address
}
