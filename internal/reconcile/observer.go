package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"go.uber.org/zap"
)

const StatusCacheKey = "fiscal:sync:status"

// LogObserver writes every status to the service log.
type LogObserver struct {
	logger logger.ZapLogger
}

func NewLogObserver(log logger.ZapLogger) *LogObserver {
	return &LogObserver{logger: log}
}

func (o *LogObserver) ObserveStatus(_ context.Context, s Status) error {
	fields := []zap.Field{
		zap.Bool("reachable", s.Reachable),
		zap.Int("pending", s.PendingCount),
		zap.Int("attempted", s.Attempted),
		zap.Int("synced", s.Synced),
		zap.Int("failed", s.Failed),
	}
	if !s.Reachable {
		o.logger.Warn("fiscal authority offline", fields...)
		return nil
	}
	o.logger.Info("fiscal sync status", fields...)
	return nil
}

type JSONSetter interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CacheObserver keeps the latest status in Redis for other processes to read.
type CacheObserver struct {
	cache JSONSetter
	ttl   time.Duration
}

func NewCacheObserver(cache JSONSetter, ttl time.Duration) *CacheObserver {
	return &CacheObserver{cache: cache, ttl: ttl}
}

func (o *CacheObserver) ObserveStatus(ctx context.Context, s Status) error {
	return o.cache.SetJSON(ctx, StatusCacheKey, s, o.ttl)
}

type MessageWriter interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// BrokerObserver publishes every status to a topic.
type BrokerObserver struct {
	writer MessageWriter
	topic  string
}

func NewBrokerObserver(writer MessageWriter, topic string) *BrokerObserver {
	return &BrokerObserver{writer: writer, topic: topic}
}

func (o *BrokerObserver) ObserveStatus(ctx context.Context, s Status) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}
	return o.writer.Publish(ctx, o.topic, "status", value)
}
