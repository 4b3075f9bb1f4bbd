package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka channel.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Event is the JSON document published to Kafka for each notification.
type Event struct {
	ID       string    `json:"id"`
	Site     string    `json:"site"`
	URL      string    `json:"url"`
	Previous *string   `json:"previous"`
	Value    string    `json:"value"`
	Rule     string    `json:"rule"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

type kafkaSender struct {
	writer *kafka.Writer
}

func newKafkaSender(cfg KafkaConfig) (*kafkaSender, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	return &kafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // one partition per site keeps events ordered
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: defaultRequestTimeout,
			Async:        false,
		},
	}, nil
}

func eventFromMessage(msg Message) Event {
	return Event{
		ID:       msg.ID,
		Site:     msg.Site,
		URL:      msg.URL,
		Previous: msg.Previous,
		Value:    msg.Value,
		Rule:     msg.Rule,
		Message:  msg.Body,
		Time:     msg.Time,
	}
}

func (s *kafkaSender) send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(eventFromMessage(msg))
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Site),
		Value: data,
		Headers: []kafka.Header{
			{Key: "notification_id", Value: []byte(msg.ID)},
			{Key: "site", Value: []byte(msg.Site)},
		},
		Time: msg.Time,
	})
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (s *kafkaSender) close() error {
	return s.writer.Close()
}
