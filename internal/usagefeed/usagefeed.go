// Package usagefeed publishes AI usage records to downstream billing and
// analytics consumers. Publication is best effort: the append-only log in the
// store is the source of truth and a lost event never fails a request.
package usagefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/xenovalaw/xenova/internal/metrics"
	"github.com/xenovalaw/xenova/internal/models"
)

// ErrQueueFull is returned when the publish buffer is full and the event is dropped.
var ErrQueueFull = errors.New("usage feed queue full, event dropped")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("usage feed closed")

// Publisher receives every AI usage record after it is stored.
type Publisher interface {
	Publish(ctx context.Context, rec *models.AIUsageRecord) error
	Close() error
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

// Publish discards rec.
func (Nop) Publish(context.Context, *models.AIUsageRecord) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultQueueSize = 1000
	defaultWorkers   = 2
	writeTimeout     = 5 * time.Second
)

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers   []string
	Topic     string
	QueueSize int
	Workers   int
}

// KafkaPublisher queues events and writes them to Kafka from a small worker
// pool. Messages are keyed by tenant id, so a tenant's events share a
// partition. Workers write concurrently and offsets do not follow creation
// order; consumers order a tenant's events by record id (a ULID).
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	events  chan *models.AIUsageRecord
	workers int

	mu       sync.RWMutex
	closed   bool
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic and starts its workers.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("usage feed: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("usage feed: topic is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}
	return newKafkaPublisher(writer, cfg), nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig) *KafkaPublisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	p := &KafkaPublisher{
		writer:   w,
		topic:    cfg.Topic,
		events:   make(chan *models.AIUsageRecord, cfg.QueueSize),
		workers:  cfg.Workers,
		shutdown: make(chan struct{}),
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Publish queues rec without blocking. A full queue drops the event.
func (p *KafkaPublisher) Publish(_ context.Context, rec *models.AIUsageRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.events <- rec:
		return nil
	default:
		metrics.UsageFeedEvents.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

func (p *KafkaPublisher) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case rec := <-p.events:
			p.send(id, rec)
		case <-p.shutdown:
			// Drain what is already queued.
			for {
				select {
				case rec := <-p.events:
					p.send(id, rec)
				default:
					return
				}
			}
		}
	}
}

func (p *KafkaPublisher) send(worker int, rec *models.AIUsageRecord) {
	msg, err := encode(rec)
	if err != nil {
		metrics.UsageFeedEvents.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("usage_id", rec.ID).Msg("Failed to encode usage event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.UsageFeedEvents.WithLabelValues("failed").Inc()
		log.Warn().
			Err(err).
			Int("worker", worker).
			Str("tenant_id", rec.TenantID).
			Str("usage_id", rec.ID).
			Msg("Failed to publish usage event")
		return
	}
	metrics.UsageFeedEvents.WithLabelValues("published").Inc()
}

func encode(rec *models.AIUsageRecord) (kafka.Message, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal usage event: %w", err)
	}
	outcome := "success"
	if !rec.Success {
		outcome = "failure"
	}
	return kafka.Message{
		Key:   []byte(rec.TenantID),
		Value: value,
		Time:  rec.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("ai_usage")},
			{Key: "tenant_id", Value: []byte(rec.TenantID)},
			{Key: "action", Value: []byte(rec.Action)},
			{Key: "outcome", Value: []byte(outcome)},
		},
	}, nil
}

// Close stops accepting events, flushes the queue and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.shutdown)
	p.wg.Wait()

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
