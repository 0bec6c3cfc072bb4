// internal/notify/redis.go
//
// Package notify publishes edge/change events to Redis Pub/Sub, so external
// subscribers can react without polling the REST surface. This supplements
// (never replaces) the in-process handler dispatch in internal/monitor —
// it is a domain-stack addition (see SPEC_FULL.md), not part of spec.md's
// core pipeline.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"s7gateway/internal/monitor"
)

// ErrNotConnected mirrors internal/cache/redis.go's connection error.
var ErrNotConnected = errors.New("conexão com Redis não estabelecida")

// Config addresses the Redis instance and the channel naming scheme.
type Config struct {
	Addr           string
	Password       string
	DB             int
	ChannelPrefix  string // e.g. "plc:events:" -> "plc:events:<tag_path>"
	ConnRetryCount int
	ConnRetryDelay time.Duration
}

// Publisher forwards monitor.Event values to Redis channels keyed by tag
// path.
type Publisher struct {
	client        *redis.Client
	ctx           context.Context
	channelPrefix string
}

// NewPublisher connects to Redis, retrying ConnRetryCount times, the same
// shape as internal/cache/redis.go's NewRedisCacheWithConfig.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "plc:events:"
	}
	if cfg.ConnRetryCount == 0 {
		cfg.ConnRetryCount = 3
	}
	if cfg.ConnRetryDelay == 0 {
		cfg.ConnRetryDelay = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx := context.Background()
	var err error
	for i := 0; i < cfg.ConnRetryCount; i++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			break
		}
		log.Printf("notify: tentativa %d/%d - erro ao conectar ao Redis (%s): %v",
			i+1, cfg.ConnRetryCount, cfg.Addr, err)
		if i < cfg.ConnRetryCount-1 {
			time.Sleep(cfg.ConnRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	log.Printf("notify: conexão com Redis estabelecida: %s", cfg.Addr)
	return &Publisher{client: client, ctx: ctx, channelPrefix: cfg.ChannelPrefix}, nil
}

type wireEvent struct {
	TagPath   string      `json:"tag_path"`
	Kind      string      `json:"kind"`
	Old       interface{} `json:"old"`
	New       interface{} `json:"new"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler returns a monitor.Handler that publishes e to this tag's Redis
// channel. Register it on every tag's monitor for every event kind the
// deployment cares about.
func (p *Publisher) Handler() monitor.Handler {
	return func(e monitor.Event) {
		payload, err := json.Marshal(wireEvent{
			TagPath:   e.TagPath,
			Kind:      string(e.Kind),
			Old:       e.Old,
			New:       e.New,
			Timestamp: e.Timestamp,
		})
		if err != nil {
			log.Printf("notify: falha ao serializar evento de %q: %v", e.TagPath, err)
			return
		}
		channel := p.channelPrefix + e.TagPath
		if err := p.client.Publish(p.ctx, channel, payload).Err(); err != nil {
			log.Printf("notify: falha ao publicar evento de %q: %v", e.TagPath, err)
		}
	}
}

// Close releases the underlying Redis connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}
