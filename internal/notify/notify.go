package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"reviewdash/pkg/utils"
)

const IngestCompletedType = "ingest.completed"

// IngestEvent is published once per ingestion run.
type IngestEvent struct {
	Type               string    `json:"type"`
	RunID              string    `json:"run_id"`
	Source             string    `json:"source"`
	AppID              string    `json:"app_id"`
	Countries          []string  `json:"countries"`
	Languages          []string  `json:"languages"`
	Seen               int       `json:"seen"`
	Rejected           int       `json:"rejected"`
	Inserted           int       `json:"inserted"`
	CombinationsTried  int       `json:"combinations_tried"`
	CombinationsFailed []string  `json:"combinations_failed"`
	Error              string    `json:"error,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

type Publisher interface {
	PublishIngest(ctx context.Context, ev IngestEvent) error
	Close() error
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(cfg utils.KafkaConfig, logger *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka brokers not configured, ingestion events disabled")
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger)
}

type NopPublisher struct{}

func (NopPublisher) PublishIngest(context.Context, IngestEvent) error { return nil }
func (NopPublisher) Close() error                                     { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

func NewKafkaPublisher(cfg utils.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// PublishIngest writes ev keyed by "<source>:<appId>" so events for the same
// app stay ordered on one partition.
func (p *KafkaPublisher) PublishIngest(ctx context.Context, ev IngestEvent) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("publisher closed")
	}

	if ev.Type == "" {
		ev.Type = IngestCompletedType
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal ingest event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Source + ":" + ev.AppID),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write ingest event: %w", err)
	}
	p.logger.Debug("published ingest event", zap.String("run_id", ev.RunID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
