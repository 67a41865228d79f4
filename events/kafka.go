package events

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

// KafkaSink forwards committed events to a Kafka topic for archive and
// analytics consumers. Messages are keyed by account so partitions keep
// per-account order.
type KafkaSink struct {
	writer *kafka.Writer
	logger *log.Logger
	ch     chan domain.Event
	done   chan struct{}
}

func NewKafkaSink(brokers []string, topic string, logger *log.Logger) *KafkaSink {
	s := &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		logger: logger,
		ch:     make(chan domain.Event, 1024),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish queues the event for the topic. A full queue drops: the sink is
// an archive feed, not the delivery path.
func (s *KafkaSink) Publish(ev domain.Event) {
	select {
	case s.ch <- ev:
	default:
		s.logger.Warnf("kafka sink queue full, dropped event, type=%s", ev.Type)
	}
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for ev := range s.ch {
		data, err := sonic.Marshal(ev)
		if err != nil {
			s.logger.WithError(err).Error("unable to encode event for kafka")
			continue
		}
		msg := kafka.Message{Value: data}
		if ev.AccountID != "" {
			msg.Key = []byte(ev.AccountID)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = s.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			s.logger.WithError(err).Error("unable to write event to kafka")
		}
	}
}

// Close drains queued events, then shuts the writer down.
func (s *KafkaSink) Close() error {
	close(s.ch)
	<-s.done
	return s.writer.Close()
}
