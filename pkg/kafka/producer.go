package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Msg is a message to publish.
type Msg struct {
	Topic   string
	Value   []byte
	Key     []byte
	Headers map[string]string
}

// Publisher is the producing side used by the consumer and the block
// processor.
type Publisher interface {
	Produce(ctx context.Context, msg Msg) error
	Errors() <-chan error
	Close(timeout time.Duration)
}

// Producer is a synchronous Kafka producer.
//
// Produce blocks until a delivery confirmation is received. A background
// goroutine watches producer events and another forwards client logs when
// enabled. Close must be called to stop them and flush in-flight messages.
type Producer struct {
	producer   *cKafka.Producer
	log        *zap.SugaredLogger
	errCh      chan error
	eventsDone chan struct{}
	logsDone   chan struct{}
	closedCh   chan struct{}
	once       sync.Once
}

var _ Publisher = (*Producer)(nil)

const queueFullRetryDelay = time.Second

// NewProducer creates a Producer. ctx bounds the lifetime of the background
// goroutines.
func NewProducer(ctx context.Context, conf *cKafka.ConfigMap, log *zap.SugaredLogger) (*Producer, error) {
	logsEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		return nil, fmt.Errorf("failed to get go.logs.channel.enable: %w", err)
	}

	p, err := cKafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	q := &Producer{
		producer:   p,
		log:        log,
		eventsDone: make(chan struct{}),
		logsDone:   make(chan struct{}),
		errCh:      make(chan error, 1),
		closedCh:   make(chan struct{}),
	}

	if enabled, _ := logsEnabled.(bool); enabled {
		go q.forwardLogs(ctx)
	} else {
		close(q.logsDone)
	}
	go q.monitorEvents(ctx)

	return q, nil
}

// Produce publishes msg and waits for its delivery report. If ctx is done
// first, ctx.Err() is returned and the message may still be delivered.
// A full local queue is retried every second.
func (q *Producer) Produce(ctx context.Context, msg Msg) error {
	deliveryCh := make(chan cKafka.Event, 1)

	kMsg := &cKafka.Message{
		TopicPartition: cKafka.TopicPartition{
			Topic:     &msg.Topic,
			Partition: cKafka.PartitionAny,
		},
		Value:   msg.Value,
		Key:     msg.Key,
		Headers: kafkaHeaders(msg.Headers),
	}

	if err := q.produceWithRetry(ctx, kMsg, deliveryCh); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryCh:
		return q.handleDelivery(kMsg, e)
	}
}

// kafkaHeaders converts headers in key order so that messages are
// reproducible.
func kafkaHeaders(headers map[string]string) []cKafka.Header {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]cKafka.Header, len(keys))
	for i, k := range keys {
		out[i] = cKafka.Header{Key: k, Value: []byte(headers[k])}
	}
	return out
}

// Close stops the background goroutines and flushes pending messages for
// at most timeout. Messages still pending after that are lost. Calling
// Close more than once does nothing.
func (q *Producer) Close(timeout time.Duration) {
	q.once.Do(func() {
		q.log.Info("closing kafka producer")
		defer close(q.errCh)

		close(q.closedCh)
		<-q.eventsDone
		<-q.logsDone

		if pending := q.producer.Flush(int(timeout.Milliseconds())); pending > 0 {
			q.log.Warnw("flush incomplete, messages will be lost", "pending", pending)
		}
		q.producer.Close()
		q.log.Info("kafka producer closed")
	})
}

// Errors returns a channel that receives at most one fatal error and is
// closed when the producer shuts down. The producer is unusable after an
// error.
func (q *Producer) Errors() <-chan error {
	return q.errCh
}

func (q *Producer) forwardLogs(ctx context.Context) {
	defer close(q.logsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedCh:
			return
		case l, ok := <-q.producer.Logs():
			if !ok {
				return
			}
			q.log.Debugw("librdkafka", "level", l.Level, "tag", l.Tag, "message", l.Message)
		}
	}
}

func (q *Producer) produceWithRetry(ctx context.Context, msg *cKafka.Message, deliveryCh chan cKafka.Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := q.producer.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		var kafkaErr cKafka.Error
		if !errors.As(err, &kafkaErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}

		switch kafkaErr.Code() {
		case cKafka.ErrQueueFull:
			q.log.Warnw("producer queue full, retrying", "delay", queueFullRetryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queueFullRetryDelay):
			}
		case cKafka.ErrBrokerNotAvailable:
			return fmt.Errorf("broker not available: %w", err)
		case cKafka.ErrInvalidMsgSize:
			return fmt.Errorf("invalid message size: %w", err)
		case cKafka.ErrUnknownTopicOrPart:
			return fmt.Errorf("unknown topic or partition: %w", err)
		default:
			return fmt.Errorf("failed to produce: %w", err)
		}
	}
}

func (q *Producer) monitorEvents(ctx context.Context) {
	defer close(q.eventsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedCh:
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				q.fatal(errors.New("kafka producer event channel closed"))
				return
			}
			switch e := ev.(type) {
			case cKafka.Error:
				if e.IsFatal() || e.Code() == cKafka.ErrAllBrokersDown {
					q.fatal(fmt.Errorf("fatal kafka producer error %#x: %w", e.Code(), e))
					return
				}
				q.log.Warnw("ignoring kafka producer error", "code", e.Code(), "error", e)
			case *cKafka.Message:
				q.log.Warnw("unexpected delivery report on the events channel", "topic", e.TopicPartition)
			default:
				q.log.Debugw("ignoring kafka producer event", "event", e)
			}
		}
	}
}

func (q *Producer) fatal(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnw("producer error channel full", "error", err)
	}
}

func (q *Producer) handleDelivery(msg *cKafka.Message, ev cKafka.Event) error {
	e, ok := ev.(*cKafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
	if err := e.TopicPartition.Error; err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	q.log.Debugw("message delivered",
		"topic", *msg.TopicPartition.Topic,
		"partition", e.TopicPartition.Partition,
		"offset", e.TopicPartition.Offset,
	)
	return nil
}
