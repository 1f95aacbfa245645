package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

var ErrTooManyPartitions = errors.New("topic has more partitions than configured")

// TopicConfig describes a topic to create or validate.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// TopicAdmin is the part of *cKafka.AdminClient used to manage topics.
type TopicAdmin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*cKafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []cKafka.TopicSpecification, options ...cKafka.CreateTopicsAdminOption) ([]cKafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []cKafka.PartitionsSpecification, options ...cKafka.CreatePartitionsAdminOption) ([]cKafka.TopicResult, error)
}

var _ TopicAdmin = (*cKafka.AdminClient)(nil)

// EnsureTopics makes sure every topic exists with at least the configured
// number of partitions. Missing topics are created and smaller ones grown.
// A topic with more partitions than configured is an error since Kafka
// cannot shrink it; a differing replication factor is only logged.
func EnsureTopics(ctx context.Context, admin TopicAdmin, log *zap.SugaredLogger, topics ...TopicConfig) error {
	for _, tc := range topics {
		if err := ensureTopic(ctx, admin, log, tc); err != nil {
			return fmt.Errorf("failed to ensure topic %q: %w", tc.Name, err)
		}
	}
	return nil
}

func ensureTopic(ctx context.Context, admin TopicAdmin, log *zap.SugaredLogger, tc TopicConfig) error {
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	meta, err := admin.GetMetadata(&tc.Name, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}
	topic, exists := meta.Topics[tc.Name]
	if !exists || topic.Error.Code() == cKafka.ErrUnknownTopicOrPart {
		return createTopic(ctx, admin, log, tc)
	}
	if topic.Error.Code() != cKafka.ErrNoError {
		return fmt.Errorf("topic has error: %w", topic.Error)
	}

	partitions := len(topic.Partitions)
	var replication int
	if partitions > 0 {
		replication = len(topic.Partitions[0].Replicas)
	}
	if replication != tc.ReplicationFactor {
		log.Warnw("topic replication factor differs from config",
			"topic", tc.Name,
			"current", replication,
			"desired", tc.ReplicationFactor,
		)
	}

	switch {
	case partitions < tc.NumPartitions:
		results, err := admin.CreatePartitions(ctx, []cKafka.PartitionsSpecification{
			{Topic: tc.Name, IncreaseTo: tc.NumPartitions},
		})
		if err != nil {
			return fmt.Errorf("failed to increase partitions: %w", err)
		}
		if err := firstError(results); err != nil {
			return fmt.Errorf("failed to increase partitions: %w", err)
		}
		log.Infow("increased topic partitions", "topic", tc.Name, "from", partitions, "to", tc.NumPartitions)
		return nil
	case partitions > tc.NumPartitions:
		return fmt.Errorf("%w: %d > %d", ErrTooManyPartitions, partitions, tc.NumPartitions)
	default:
		return nil
	}
}

func createTopic(ctx context.Context, admin TopicAdmin, log *zap.SugaredLogger, tc TopicConfig) error {
	results, err := admin.CreateTopics(ctx, []cKafka.TopicSpecification{{
		Topic:             tc.Name,
		NumPartitions:     tc.NumPartitions,
		ReplicationFactor: tc.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	for _, r := range results {
		if r.Error.Code() == cKafka.ErrTopicAlreadyExists {
			log.Infow("topic already exists", "topic", r.Topic)
			return nil
		}
	}
	if err := firstError(results); err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	log.Infow("created topic",
		"topic", tc.Name,
		"partitions", tc.NumPartitions,
		"replicationFactor", tc.ReplicationFactor,
	)
	return nil
}

func firstError(results []cKafka.TopicResult) error {
	for _, r := range results {
		if r.Error.Code() != cKafka.ErrNoError {
			return r.Error
		}
	}
	return nil
}
