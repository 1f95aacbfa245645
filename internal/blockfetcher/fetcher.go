// Package blockfetcher reads a range of blocks from a node and publishes
// them as block envelopes, in height order.
package blockfetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/avalanche-streamline/internal/chainclient"
	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka/message"
)

var (
	ErrInvalidLogger      = errors.New("invalid logger: must not be nil")
	ErrInvalidClient      = errors.New("invalid chain client: must not be nil")
	ErrInvalidPublisher   = errors.New("invalid publisher: must not be nil")
	ErrInvalidTopic       = errors.New("invalid topic: must not be empty")
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be greater than 0")
	ErrInvalidRange       = errors.New("invalid range: start must not exceed end")
)

// Fetcher fetches up to concurrency blocks at a time and publishes each
// window in order before starting the next one.
type Fetcher struct {
	log         *zap.SugaredLogger
	client      chainclient.ChainClient
	publisher   kafka.Publisher
	topic       string
	concurrency int
}

func New(
	log *zap.SugaredLogger,
	client chainclient.ChainClient,
	publisher kafka.Publisher,
	topic string,
	concurrency int,
) (*Fetcher, error) {
	switch {
	case log == nil:
		return nil, ErrInvalidLogger
	case client == nil:
		return nil, ErrInvalidClient
	case publisher == nil:
		return nil, ErrInvalidPublisher
	case topic == "":
		return nil, ErrInvalidTopic
	case concurrency <= 0:
		return nil, ErrInvalidConcurrency
	}
	return &Fetcher{
		log:         log,
		client:      client,
		publisher:   publisher,
		topic:       topic,
		concurrency: concurrency,
	}, nil
}

// Run publishes blocks start..end inclusive. An end of zero means the
// latest block at the time of the call.
func (f *Fetcher) Run(ctx context.Context, start, end uint64) error {
	if end == 0 {
		latest, err := f.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		end = latest
	}
	if start > end {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRange, start, end)
	}

	f.log.Infow("fetching blocks", "start", start, "end", end, "concurrency", f.concurrency)
	for from := start; from <= end; {
		to := min(from+uint64(f.concurrency)-1, end)
		blocks, err := f.fetch(ctx, from, to)
		if err != nil {
			return err
		}
		for _, blk := range blocks {
			if err := f.publish(ctx, blk); err != nil {
				return err
			}
		}
		f.log.Debugw("published blocks", "from", from, "to", to)

		if to == end {
			break
		}
		from = to + 1
	}
	f.log.Infow("fetched all blocks", "start", start, "end", end)
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, from, to uint64) ([]*chain.Block, error) {
	blocks := make([]*chain.Block, to-from+1)
	g, gctx := errgroup.WithContext(ctx)
	for i := range blocks {
		g.Go(func() error {
			blk, err := f.client.BlockByNumber(gctx, from+uint64(i))
			if err != nil {
				return err
			}
			blocks[i] = blk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (f *Fetcher) publish(ctx context.Context, blk *chain.Block) error {
	data, err := blk.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode block %d: %w", blk.NumberU64(), err)
	}
	number := strconv.FormatUint(blk.NumberU64(), 10)
	ts := time.Unix(int64(blk.Timestamp), 0)
	value, err := message.New(message.TypeBlock, blk.Hash.Hex(), ts, data).Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode envelope of block %s: %w", number, err)
	}

	// One key for every block keeps them on one partition, in order.
	err = f.publisher.Produce(ctx, kafka.Msg{
		Topic:   f.topic,
		Key:     []byte(f.topic),
		Value:   value,
		Headers: map[string]string{"type": message.TypeBlock, "block": number},
	})
	if err != nil {
		return fmt.Errorf("failed to publish block %s: %w", number, err)
	}
	return nil
}
