// Package processor defines what the consumer hands each polled message to.
package processor

import (
	"context"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Processor handles one message. A returned error sends the message to the
// DLQ, or stops the consumer when there is none. Messages are handed over
// one at a time.
type Processor interface {
	Process(ctx context.Context, msg *cKafka.Message) error
}
