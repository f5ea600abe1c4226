package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/faultkeeper/internal/resilience/metrics"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
)

// Defaults for publishing.
const (
	DefaultChannel  = "faultkeeper:events"
	DefaultLevelKey = "faultkeeper:system_health"
	DefaultLevelTTL = 10 * time.Minute
	DefaultBuffer   = 256
)

// Store is the subset of Client the publisher writes to.
type Store interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error
}

// Publisher forwards orchestrator events to Redis. Notify never blocks;
// events are written by Run.
type Publisher struct {
	store    Store
	channel  string
	levelKey string
	levelTTL time.Duration
	events   chan recovery.Event
	log      *slog.Logger
}

// NewPublisher creates a publisher. Zero config values take the defaults.
func NewPublisher(store Store, cfg Config) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.LevelKey == "" {
		cfg.LevelKey = DefaultLevelKey
	}
	if cfg.LevelTTL <= 0 {
		cfg.LevelTTL = DefaultLevelTTL
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	return &Publisher{
		store:    store,
		channel:  cfg.Channel,
		levelKey: cfg.LevelKey,
		levelTTL: cfg.LevelTTL,
		events:   make(chan recovery.Event, cfg.Buffer),
		log:      slog.Default().With("component", "redis-publisher"),
	}
}

// Notify implements recovery.EventSink. Events are dropped when the buffer is full.
func (p *Publisher) Notify(e recovery.Event) {
	select {
	case p.events <- e:
	default:
		metrics.EventsDroppedTotal.WithLabelValues("redis").Inc()
		p.log.Warn("Event buffer full, dropping event", "kind", e.Kind, "id", e.ID)
	}
}

// Run publishes events until ctx is cancelled, then drains what is buffered.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case e := <-p.events:
			p.publish(ctx, e)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-p.events:
			p.publish(ctx, e)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, e recovery.Event) {
	if err := p.write(ctx, e); err != nil {
		p.log.Error("Failed to publish event", "kind", e.Kind, "id", e.ID, "error", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues("redis").Inc()
	p.log.Debug("Event published", "channel", p.channel, "kind", e.Kind)
}

func (p *Publisher) write(ctx context.Context, e recovery.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.store.Publish(ctx, p.channel, data); err != nil {
		return err
	}

	switch e.Kind {
	case recovery.EventHealthChanged, recovery.EventCritical, recovery.EventEmergency:
		if err := p.store.SetValue(ctx, p.levelKey, string(e.Level), p.levelTTL); err != nil {
			return err
		}
	}
	return nil
}
