package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
	// timezone names resolve without system tzdata
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"

	"ledMatrix/pkg/logging"
	"ledMatrix/pkg/transport"
	"ledMatrix/sender/internal/control"
	"ledMatrix/sender/internal/entity"
	"ledMatrix/sender/internal/framer"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Address     string         `yaml:"address" env:"SENDER_ADDRESS" env-default:"tcp://*:5555"`
	Topic       string         `yaml:"topic" env:"FRAME_TOPIC" env-default:"/frames"`
	FPS         int            `yaml:"fps" env:"SENDER_FPS" env-default:"30"`
	Source      string         `yaml:"source" env:"SENDER_SOURCE" env-default:"clock"`
	Image       string         `yaml:"image" env:"SENDER_IMAGE"`
	Text        string         `yaml:"text" env:"SENDER_TEXT" env-default:"ledMatrix"`
	ScrollSpeed int            `yaml:"scroll_speed" env:"SENDER_SCROLL_SPEED" env-default:"1"`
	Timezone    string         `yaml:"timezone" env:"SENDER_TIMEZONE" env-default:"Local"`
	Width       int            `yaml:"width" env:"SENDER_WIDTH" env-default:"128"`
	Height      int            `yaml:"height" env:"SENDER_HEIGHT" env-default:"64"`
	HTTP        HTTPConfig     `yaml:"http"`
	MQTT        MQTTConfig     `yaml:"mqtt"`
	Log         logging.Config `yaml:"log"`
}

// HTTPConfig enables the control API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"SENDER_HTTP_ADDR"`
}

// MQTTConfig enables the MQTT control plane when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"MQTT_BROKER"`
	Topic    string `yaml:"topic" env:"MQTT_TOPIC" env-default:"ledmatrix/sender"`
	ClientID string `yaml:"client_id" env:"MQTT_CLIENT_ID" env-default:"ledmatrix-sender"`
}

var brokerSchemes = map[string]bool{"tcp": true, "mqtt": true, "ssl": true, "tls": true, "ws": true, "wss": true}

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
	if _, err := transport.SchemeOf(c.Address); err != nil {
		return fmt.Errorf("%w: address: %v", ErrInvalid, err)
	}
	if c.Topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalid)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive", ErrInvalid)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalid, c.Width, c.Height)
	}
	if c.ScrollSpeed <= 0 {
		return fmt.Errorf("%w: scroll speed must be positive", ErrInvalid)
	}

	catalog, err := c.Catalog()
	if err != nil {
		return err
	}
	source, err := catalog.Canonical(c.Source)
	if err != nil {
		if c.Source == entity.SourceFile {
			return fmt.Errorf("%w: file source needs %s", ErrInvalid, entity.EnvImage)
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	c.Source = source

	if c.MQTT.Broker != "" {
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil || !brokerSchemes[u.Scheme] || u.Host == "" {
			return fmt.Errorf("%w: mqtt broker %q", ErrInvalid, c.MQTT.Broker)
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("%w: empty mqtt topic", ErrInvalid)
		}
	}

	return nil
}

// Catalog returns the sources this config can run.
func (c *Config) Catalog() (*framer.Catalog, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %v", ErrInvalid, err)
	}

	return framer.NewCatalog(framer.Options{
		Width:    c.Width,
		Height:   c.Height,
		Image:    c.Image,
		Text:     c.Text,
		Speed:    c.ScrollSpeed,
		Location: loc,
	}), nil
}

func (c *Config) Control() control.Config {
	return control.Config{Broker: c.MQTT.Broker, Topic: c.MQTT.Topic, ClientID: c.MQTT.ClientID}
}
