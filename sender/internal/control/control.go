package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"ledMatrix/sender/internal/entity"
)

const (
	connectTimeout = 5 * time.Second
	retryInterval  = 2 * time.Second
	maxReconnect   = 30 * time.Second
	disconnectWait = 250
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
}

type Switcher interface {
	Switch(name string) error
	Current() string
}

type command struct {
	Command    string `json:"Command"`
	TargetMode string `json:"TargetMode"`
}

type stat struct {
	CurrentMode string `json:"CurrentMode"`
}

// Service takes ChangeMode commands from {topic}/cmnd and reports the mode
// that is running on {topic}/stat. {topic}/availability is retained and
// set to offline by the broker if the connection drops.
type Service struct {
	cfg      Config
	switcher Switcher

	client mqtt.Client
	mu     sync.Mutex
	broker broker

	logger *zap.Logger
}

func New(cfg Config, switcher Switcher, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		switcher: switcher,
		logger:   logger.Named("control").With(zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic)),
	}
}

func (r *Service) topic(sub string) string {
	return r.cfg.Topic + sub
}

func (r *Service) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(r.cfg.Broker)
	opts.SetClientID(r.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retryInterval)
	opts.SetMaxReconnectInterval(maxReconnect)
	opts.SetOrderMatters(false)
	opts.SetWill(r.topic(entity.MQTTAvailability), entity.Offline, 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		r.online(pahoBroker{client: c})
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		r.mu.Lock()
		r.broker = nil
		r.mu.Unlock()
		r.logger.Warn("mqtt connection lost", zap.Error(err))
	}

	return opts
}

// Start connects in the background. An unreachable broker is retried and
// does not fail Start.
func (r *Service) Start() error {
	r.client = mqtt.NewClient(r.options())

	token := r.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		r.logger.Warn("mqtt broker not reachable yet, retrying")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", r.cfg.Broker, err)
	}

	return nil
}

// Run starts the service and stops it when ctx is done.
func (r *Service) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	r.Stop()
	return nil
}

func (r *Service) online(b broker) {
	if err := b.Subscribe(r.topic(entity.MQTTCommand), 1, r.handle); err != nil {
		r.logger.Error("subscribe commands", zap.Error(err))
		return
	}
	if err := b.Publish(r.topic(entity.MQTTAvailability), 1, true, []byte(entity.Online)); err != nil {
		r.logger.Error("publish availability", zap.Error(err))
	}

	r.mu.Lock()
	r.broker = b
	r.mu.Unlock()

	r.logger.Info("mqtt connected")
	r.SourceChanged(r.switcher.Current())
}

func (r *Service) handle(payload []byte) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		r.logger.Warn("bad command", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	if cmd.Command != entity.CommandChangeMode {
		r.logger.Warn("unsupported command", zap.String("command", cmd.Command))
		return
	}

	if err := r.switcher.Switch(cmd.TargetMode); err != nil {
		r.logger.Warn("change mode", zap.String("target", cmd.TargetMode), zap.Error(err))
		return
	}
	r.logger.Info("change mode requested", zap.String("target", cmd.TargetMode))
}

// SourceChanged publishes the running source. It is a no-op while the
// broker is not connected; the current source is sent again on connect.
func (r *Service) SourceChanged(name string) {
	r.mu.Lock()
	b := r.broker
	r.mu.Unlock()
	if b == nil {
		return
	}

	payload, err := json.Marshal(stat{CurrentMode: name})
	if err != nil {
		r.logger.Error("encode stat", zap.Error(err))
		return
	}
	if err := b.Publish(r.topic(entity.MQTTStat), 0, false, payload); err != nil {
		r.logger.Warn("publish stat", zap.Error(err))
	}
}

// Stop marks the sender offline and disconnects.
func (r *Service) Stop() {
	r.mu.Lock()
	b := r.broker
	r.broker = nil
	r.mu.Unlock()

	if b != nil {
		if err := b.Publish(r.topic(entity.MQTTAvailability), 1, true, []byte(entity.Offline)); err != nil {
			r.logger.Warn("publish availability", zap.Error(err))
		}
	}
	if r.client != nil {
		r.client.Disconnect(disconnectWait)
	}
	r.logger.Info("mqtt disconnected")
}
