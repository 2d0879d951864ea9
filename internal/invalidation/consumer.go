package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/feathergis/queryfront/internal/cache/respcache"
	"github.com/feathergis/queryfront/internal/core/observability"
	"github.com/feathergis/queryfront/internal/geom"
	"github.com/feathergis/queryfront/internal/mapper/h3grid"
)

type Config struct {
	Brokers          []string
	Topic            string
	GroupID          string
	CellRes          int
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
}

// ViewEvictor drops a view definition from the local hot cache.
type ViewEvictor interface {
	Evict(database, collection, id string)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  *respcache.Cache
	views  ViewEvictor

	mu         sync.Mutex
	ready      bool
	partitions []int32
}

func NewConsumer(cfg Config, logger *slog.Logger, cache *respcache.Cache, views ViewEvictor) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	if cfg.RebalanceTimeout == 0 {
		cfg.RebalanceTimeout = 30 * time.Second
	}
	return &Consumer{cfg: cfg, logger: logger, cache: cache, views: views}
}

// Readiness reports whether a partition assignment is held.
func (c *Consumer) Readiness() (bool, []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready, append([]int32(nil), c.partitions...)
}

func (c *Consumer) setAssignment(ready bool, partitions []int32) {
	c.mu.Lock()
	c.ready = ready
	c.partitions = partitions
	c.mu.Unlock()
}

// Start runs the consumer group loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("invalidation: missing response cache")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{consumer: c}

	c.logger.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.setAssignment(false, nil)
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// Apply processes one decoded event. Split out from the Kafka plumbing
// so tests can drive it directly.
func (c *Consumer) Apply(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	switch ev.Kind {
	case KindViewChange:
		if c.views != nil {
			c.views.Evict(ev.Database, ev.Collection, ev.View)
		}
		if err := c.cache.InvalidateCollection(ctx, ev.Database, ev.Collection); err != nil {
			return err
		}
		observability.IncInvalidation(KindViewChange)

	case KindFeatureChange:
		if len(ev.Bbox) == 4 {
			env := geom.Envelope{
				MinX: ev.Bbox[0], MinY: ev.Bbox[1],
				MaxX: ev.Bbox[2], MaxY: ev.Bbox[3],
				CRS: geom.WGS84,
			}
			cells, err := h3grid.CellsForEnvelope(env, c.cfg.CellRes)
			if err != nil {
				return fmt.Errorf("derive cells: %w", err)
			}
			if len(cells) > 0 {
				if err := c.cache.InvalidateCells(ctx, ev.Database, ev.Collection, cells); err != nil {
					return err
				}
				observability.IncInvalidation(KindFeatureChange)
				c.logger.Debug("invalidated by cells",
					"collection", ev.Database+"/"+ev.Collection, "cells", len(cells))
				return nil
			}
		}
		if err := c.cache.InvalidateCollection(ctx, ev.Database, ev.Collection); err != nil {
			return err
		}
		observability.IncInvalidation(KindFeatureChange)
		c.logger.Debug("invalidated collection",
			"collection", ev.Database+"/"+ev.Collection)
	}
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// poison message; log and move on rather than wedging the claim
		c.logger.Error("undecodable invalidation event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := c.Apply(ctx, ev); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.Error("invalidation event failed",
			"kind", ev.Kind, "collection", ev.Database+"/"+ev.Collection, "err", err)
		return nil
	}
	return nil
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(s sarama.ConsumerGroupSession) error {
	var parts []int32
	for _, ps := range s.Claims() {
		parts = append(parts, ps...)
	}
	h.consumer.setAssignment(true, parts)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.consumer.setAssignment(false, nil)
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.consumer.processMessage(ctx, msg); err != nil {
				return err
			}
			sess.MarkMessage(msg, "")
		}
	}
}
