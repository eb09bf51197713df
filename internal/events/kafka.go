// Package events carries upload events over Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
)

const (
	DefaultUploadTopic = "user_uploads.events"
	DefaultGroupID     = "upload-moderation"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes UploadEvents keyed by user id.
type Publisher struct {
	w messageWriter
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	return &Publisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}, nil
}

func (p *Publisher) PublishUpload(ctx context.Context, ev models.UploadEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: body,
	})
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// UploadHandler processes one decoded event.
type UploadHandler func(ctx context.Context, ev models.UploadEvent) error

// Consumer reads UploadEvents from a consumer group.
type Consumer struct {
	r   messageReader
	log logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log logger.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		log: log,
	}, nil
}

// Run blocks until ctx ends. Every message is committed once handled,
// including ones that fail to decode or whose handler errors; the handler
// is expected to log its own failures.
func (c *Consumer) Run(ctx context.Context, handle UploadHandler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("read message failed", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var ev models.UploadEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Warn("skipping undecodable message",
				zap.Int64("offset", msg.Offset), zap.Error(err))
			c.commit(ctx, msg)
			continue
		}

		if err := handle(ctx, ev); err != nil {
			c.log.Warn("upload event not processed cleanly",
				zap.String("record", ev.RecordID), zap.Error(err))
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.r.CommitMessages(ctx, msg); err != nil {
		c.log.Error("commit message failed", err, zap.Int64("offset", msg.Offset))
	}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}
