package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/kafka/processor"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
)

// DLQ message headers.
const (
	HeaderError             = "x-error"
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
)

// consumerClient is the part of *cKafka.Consumer the consume loop uses.
type consumerClient interface {
	SubscribeTopics(topics []string, rebalanceCb cKafka.RebalanceCb) error
	Poll(timeoutMs int) cKafka.Event
	CommitMessage(m *cKafka.Message) ([]cKafka.TopicPartition, error)
	Logs() chan cKafka.LogEvent
	Close() error
}

// Consumer reads block envelopes one message at a time. A message is
// committed once it was processed, or once it was parked on the DLQ after
// processing failed. Without a DLQ a failure stops the consumer and the
// message is read again on restart.
type Consumer struct {
	client    consumerClient
	processor processor.Processor
	dlq       Publisher
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
	cfg       ConsumerConfig
	logsDone  chan struct{}
	doneCh    chan struct{}
}

// NewConsumer creates a Consumer and, unless it consumes a DLQ itself, the
// producer of its dead letter queue.
func NewConsumer(
	ctx context.Context,
	log *zap.SugaredLogger,
	cfg ConsumerConfig,
	proc processor.Processor,
	m *metrics.Metrics,
) (*Consumer, error) {
	cfg = cfg.WithDefaults()
	kc, err := cKafka.NewConsumer(cfg.ConsumerConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	var dlq Publisher
	if !cfg.IsDLQConsumer && cfg.DLQTopic != "" {
		dlq, err = NewProducer(ctx, cfg.ProducerConfigMap(), log)
		if err != nil {
			_ = kc.Close()
			return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
		}
	}
	return newConsumer(kc, dlq, proc, log, m, cfg), nil
}

func newConsumer(
	client consumerClient,
	dlq Publisher,
	proc processor.Processor,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	cfg ConsumerConfig,
) *Consumer {
	return &Consumer{
		client:    client,
		processor: proc,
		dlq:       dlq,
		log:       log,
		metrics:   m,
		cfg:       cfg.WithDefaults(),
		logsDone:  make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start consumes until ctx is done or an unrecoverable error occurs. It
// returns nil on a clean shutdown. The consumer cannot be restarted.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg.IsDLQConsumer {
		c.log.Warnw("consumer is subscribing to a DLQ topic - messages will NOT be re-sent to DLQ on failure",
			"topic", c.cfg.Topic,
		)
	}

	if c.cfg.EnableLogs {
		go c.forwardLogs(ctx)
	} else {
		close(c.logsDone)
	}

	if err := c.client.SubscribeTopics([]string{c.cfg.Topic}, c.rebalance); err != nil {
		return c.close(fmt.Errorf("failed to subscribe to topics: %w", err))
	}

	var dlqErrors <-chan error
	if c.dlq != nil {
		dlqErrors = c.dlq.Errors()
	}
	pollMs := int(c.cfg.PollInterval.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			c.log.Info("context done, shutting down consumer")
			return c.close(nil)
		case err, ok := <-dlqErrors:
			if ok {
				return c.close(fmt.Errorf("fatal error from DLQ producer: %w", err))
			}
			dlqErrors = nil
			continue
		default:
		}

		switch ev := c.client.Poll(pollMs).(type) {
		case nil:
		case *cKafka.Message:
			if err := c.handle(ctx, ev); err != nil {
				if ctx.Err() != nil {
					c.log.Infow("shutdown interrupted processing, message will be redelivered",
						"partition", ev.TopicPartition.Partition,
						"offset", ev.TopicPartition.Offset,
					)
					return c.close(nil)
				}
				return c.close(err)
			}
		case cKafka.Error:
			c.metrics.RecordKafkaError(ev.IsFatal())
			if ev.IsFatal() {
				return c.close(fmt.Errorf("fatal kafka error: %w", ev))
			}
			c.log.Warnw("kafka error (non-fatal)", "error", ev)
		default:
			c.log.Debugw("ignoring kafka event", "event", ev)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *cKafka.Message) error {
	partition := msg.TopicPartition.Partition
	c.metrics.RecordMessageReceived(partition)

	start := time.Now()
	err := c.processor.Process(ctx, msg)
	c.metrics.RecordMessageProcessed(partition, err, time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.dlq == nil {
			return fmt.Errorf("failed to process message at offset %v of partition %d: %w",
				msg.TopicPartition.Offset, partition, err)
		}
		c.log.Warnw("failed to process message, sending to DLQ",
			"partition", partition,
			"offset", msg.TopicPartition.Offset,
			"error", err,
		)
		publishErr := c.publishToDLQ(ctx, msg, err)
		c.metrics.RecordDLQProduction(publishErr)
		if publishErr != nil {
			return publishErr
		}
	}

	if _, err := c.client.CommitMessage(msg); err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}
	return nil
}

// publishToDLQ parks a failed message on the dead letter queue along with
// the failure and its origin.
func (c *Consumer) publishToDLQ(ctx context.Context, msg *cKafka.Message, cause error) error {
	var topic string
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}

	dlqMsg := Msg{
		Topic: c.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Headers: map[string]string{
			HeaderError:             cause.Error(),
			HeaderOriginalTopic:     topic,
			HeaderOriginalPartition: strconv.Itoa(int(msg.TopicPartition.Partition)),
			HeaderOriginalOffset:    msg.TopicPartition.Offset.String(),
		},
	}
	if err := c.dlq.Produce(ctx, dlqMsg); err != nil {
		return fmt.Errorf("failed to produce to DLQ: %w", err)
	}

	c.log.Infow("published message to DLQ",
		"originalTopic", topic,
		"originalPartition", msg.TopicPartition.Partition,
		"originalOffset", msg.TopicPartition.Offset,
		"dlqTopic", c.cfg.DLQTopic,
	)
	return nil
}

func (c *Consumer) close(cause error) error {
	close(c.doneCh)
	<-c.logsDone
	if c.dlq != nil {
		c.dlq.Close(*c.cfg.FlushTimeout)
	}
	err := c.client.Close()
	if err != nil {
		c.log.Errorw("failed to close consumer", "error", err)
	}
	c.log.Info("consumer shutdown complete")
	return errors.Join(cause, err)
}

func (c *Consumer) rebalance(kc *cKafka.Consumer, event cKafka.Event) error {
	switch ev := event.(type) {
	case cKafka.AssignedPartitions:
		c.log.Infow("partitions assigned", "count", len(ev.Partitions), "partitions", ev.Partitions)
		c.metrics.RecordPartitionAssignment(partitionIDs(ev.Partitions))
	case cKafka.RevokedPartitions:
		c.log.Infow("partitions revoked", "count", len(ev.Partitions), "partitions", ev.Partitions)
		if kc != nil && kc.AssignmentLost() {
			c.log.Error("assignment lost involuntarily, commit may fail")
		}
		c.metrics.RecordPartitionRevocation()
	default:
		c.log.Warnw("unexpected rebalance event", "event", event)
	}
	return nil
}

func partitionIDs(tps []cKafka.TopicPartition) []int32 {
	out := make([]int32, len(tps))
	for i, tp := range tps {
		out[i] = tp.Partition
	}
	return out
}

func (c *Consumer) forwardLogs(ctx context.Context) {
	defer close(c.logsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.doneCh:
			return
		case l, ok := <-c.client.Logs():
			if !ok {
				return
			}
			c.log.Debugw("librdkafka", "level", l.Level, "tag", l.Tag, "message", l.Message)
		}
	}
}
