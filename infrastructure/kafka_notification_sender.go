package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sidebet/models"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sender uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotificationSender streams notifications to a Kafka topic keyed by user,
// so each user's notifications stay ordered within a partition
type KafkaNotificationSender struct {
	writer messageWriter
}

// NewKafkaWriter creates a writer for the notification topic
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewKafkaNotificationSender creates a new Kafka notification sender
func NewKafkaNotificationSender(writer messageWriter) *KafkaNotificationSender {
	return &KafkaNotificationSender{writer: writer}
}

func (s *KafkaNotificationSender) Name() string { return "kafka" }

func (s *KafkaNotificationSender) Send(ctx context.Context, notification *models.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(notification.UserID, 10)),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(notification.Type)},
			{Key: "priority", Value: []byte(notification.Priority)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write notification to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (s *KafkaNotificationSender) Close() error {
	return s.writer.Close()
}
