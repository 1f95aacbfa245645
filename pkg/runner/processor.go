// Package runner evaluates the configured script modules against each block
// read from Kafka and ships their outputs and store deltas.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/checkpointer"
	"github.com/ava-labs/avalanche-streamline/pkg/data/clickhouse/deltas"
	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka/message"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka/processor"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
	"github.com/ava-labs/avalanche-streamline/pkg/scriptvm"
	"github.com/ava-labs/avalanche-streamline/pkg/store"
)

var ErrNilMessage = errors.New("received nil message or empty value")

// Config holds the settings of a BlockProcessor.
type Config struct {
	// Pipeline names the checkpoint of this set of modules.
	Pipeline string
	// OutputTopic receives one output envelope per block. Empty disables
	// publishing.
	OutputTopic string
	Checkpoint  checkpointer.Config
}

// Engine runs script functions against a block.
type Engine interface {
	RunMap(ctx context.Context, fn string, blk *chain.Block) (dynamic.Value, error)
	RunStore(ctx context.Context, fn string, blk *chain.Block, st *store.Store, policy store.Policy) (dynamic.Value, error)
}

var _ Engine = (*scriptvm.Engine)(nil)

// ModuleOutput is what one module produced for one block.
type ModuleOutput struct {
	Name   string
	Output dynamic.Value
	Deltas []store.Delta
}

// Result is the evaluation of every module, in module order.
type Result struct {
	Block   *chain.Block
	Modules []ModuleOutput
}

// Value projects the result as
// {block: {number, hash}, modules: {<name>: {output, deltas?}}}.
func (r *Result) Value() dynamic.Value {
	modules := dynamic.NewOrderedMap()
	for _, m := range r.Modules {
		out := dynamic.NewOrderedMap()
		out.Set("output", m.Output)
		if m.Deltas != nil {
			out.Set("deltas", store.ProjectDeltas(m.Deltas))
		}
		modules.Set(m.Name, dynamic.Map(out))
	}
	return dynamic.MapOf(
		"block", dynamic.MapOf(
			"number", dynamic.BigInt(new(big.Int).SetUint64(r.Block.NumberU64())),
			"hash", dynamic.Text(r.Block.Hash.Hex()),
		),
		"modules", dynamic.Map(modules),
	)
}

// BlockProcessor runs the modules against each block envelope. Blocks are
// handled one at a time. The publisher, sink and checkpointer are optional.
type BlockProcessor struct {
	log          *zap.SugaredLogger
	metrics      *metrics.Metrics
	engine       Engine
	modules      []*Module
	cfg          Config
	publisher    kafka.Publisher
	sink         deltas.Repository
	checkpointer checkpointer.Checkpointer

	// next is the lowest block not processed yet, loaded from the
	// checkpointer on the first message.
	next       uint64
	nextLoaded bool
}

var _ processor.Processor = (*BlockProcessor)(nil)

func NewBlockProcessor(
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	engine Engine,
	modules []*Module,
	cfg Config,
	publisher kafka.Publisher,
	sink deltas.Repository,
	cp checkpointer.Checkpointer,
) *BlockProcessor {
	return &BlockProcessor{
		log:          log,
		metrics:      m,
		engine:       engine,
		modules:      modules,
		cfg:          cfg,
		publisher:    publisher,
		sink:         sink,
		checkpointer: cp,
	}
}

// Process evaluates the block carried by msg. Nothing is committed unless
// the output was published and the deltas were written; a failed block
// leaves every store as it was so that it can be processed again.
func (p *BlockProcessor) Process(ctx context.Context, msg *cKafka.Message) error {
	if msg == nil || msg.Value == nil {
		p.metrics.IncError(metrics.ErrTypeInvalidEnvelope)
		return ErrNilMessage
	}

	env, err := message.OpenAs(msg.Value, message.TypeBlock)
	if err != nil {
		p.metrics.IncError(metrics.ErrTypeInvalidEnvelope)
		return err
	}
	var blk chain.Block
	if err := blk.Unmarshal(env.Data); err != nil {
		p.metrics.IncError(metrics.ErrTypeInvalidBlock)
		return fmt.Errorf("failed to unmarshal block: %w", err)
	}

	skip, err := p.alreadyProcessed(ctx, &blk)
	if err != nil || skip {
		return err
	}

	start := time.Now()
	err = p.process(ctx, &blk)
	p.metrics.RecordBlockProcessed(blk.NumberU64(), err, time.Since(start).Seconds())
	return err
}

func (p *BlockProcessor) process(ctx context.Context, blk *chain.Block) error {
	res, err := p.Evaluate(ctx, blk)
	if err != nil {
		return err
	}

	if err := p.ship(ctx, res); err != nil {
		p.reset()
		return err
	}
	if err := p.Commit(); err != nil {
		p.metrics.IncError(metrics.ErrTypeStoreCommit)
		return err
	}

	if p.checkpointer != nil {
		next := blk.NumberU64() + 1
		if err := checkpointer.Write(ctx, p.checkpointer, p.cfg.Checkpoint, p.cfg.Pipeline, next); err != nil {
			return err
		}
		p.next, p.nextLoaded = next, true
	}

	p.log.Debugw("processed block",
		"blockNumber", blk.NumberU64(),
		"hash", blk.Hash,
		"logs", len(blk.Logs),
	)
	return nil
}

// Evaluate runs every module in order against blk. Store writes stay
// buffered until Commit, so a get module sees what its source wrote earlier
// in the same block. On error every store is reset.
func (p *BlockProcessor) Evaluate(ctx context.Context, blk *chain.Block) (*Result, error) {
	res := &Result{Block: blk, Modules: make([]ModuleOutput, 0, len(p.modules))}
	for _, m := range p.modules {
		var (
			out dynamic.Value
			err error
		)
		switch m.Kind {
		case KindStore:
			out, err = p.engine.RunStore(ctx, m.Name, blk, m.Store, m.Policy)
		default:
			out, err = p.engine.RunMap(ctx, m.Name, blk)
		}
		if err != nil {
			p.reset()
			if ctx.Err() == nil {
				p.metrics.IncError(metrics.ErrTypeScript)
			}
			return nil, fmt.Errorf("module %s failed at block %d: %w", m.Name, blk.NumberU64(), err)
		}

		mo := ModuleOutput{Name: m.Name, Output: out}
		if m.ownsStore() {
			mo.Deltas = m.Store.Deltas()
		}
		res.Modules = append(res.Modules, mo)
	}
	return res, nil
}

// Commit applies the buffered writes of every store.
func (p *BlockProcessor) Commit() error {
	var committed int
	for _, m := range p.modules {
		if !m.ownsStore() {
			continue
		}
		n := len(m.Store.Deltas())
		if err := m.Store.Commit(); err != nil {
			p.reset()
			return fmt.Errorf("module %s: %w", m.Name, err)
		}
		committed += n
	}
	p.metrics.AddDeltasCommitted(committed)
	return nil
}

func (p *BlockProcessor) ship(ctx context.Context, res *Result) error {
	number := res.Block.NumberU64()

	if p.publisher != nil && p.cfg.OutputTopic != "" {
		data, err := res.Value().MarshalJSON()
		if err != nil {
			p.metrics.IncError(metrics.ErrTypePublish)
			return fmt.Errorf("failed to encode output of block %d: %w", number, err)
		}
		env := message.New(message.TypeOutput, res.Block.Hash.Hex(), time.Now(), data)
		value, err := env.Marshal()
		if err != nil {
			p.metrics.IncError(metrics.ErrTypePublish)
			return fmt.Errorf("failed to encode output envelope: %w", err)
		}
		err = p.publisher.Produce(ctx, kafka.Msg{
			Topic: p.cfg.OutputTopic,
			Key:   []byte(p.cfg.Pipeline),
			Value: value,
			Headers: map[string]string{
				"type":  message.TypeOutput,
				"block": strconv.FormatUint(number, 10),
			},
		})
		if err != nil {
			p.metrics.IncError(metrics.ErrTypePublish)
			return fmt.Errorf("failed to publish output of block %d: %w", number, err)
		}
	}

	if p.sink != nil {
		for _, m := range res.Modules {
			if err := p.sink.WriteDeltas(ctx, number, m.Name, m.Deltas); err != nil {
				p.metrics.IncError(metrics.ErrTypeSink)
				return err
			}
		}
	}
	return nil
}

func (p *BlockProcessor) alreadyProcessed(ctx context.Context, blk *chain.Block) (bool, error) {
	if p.checkpointer == nil {
		return false, nil
	}
	if !p.nextLoaded {
		next, exists, err := p.checkpointer.Read(ctx, p.cfg.Pipeline)
		if err != nil {
			return false, fmt.Errorf("failed to read checkpoint: %w", err)
		}
		p.next, p.nextLoaded = next, exists
		if exists {
			p.log.Infow("resuming from checkpoint", "pipeline", p.cfg.Pipeline, "nextBlock", next)
		}
	}
	if p.nextLoaded && blk.NumberU64() < p.next {
		p.log.Infow("skipping block below checkpoint",
			"blockNumber", blk.NumberU64(),
			"nextBlock", p.next,
		)
		return true, nil
	}
	return false, nil
}

func (p *BlockProcessor) reset() {
	for _, m := range p.modules {
		if m.ownsStore() {
			m.Store.Reset()
		}
	}
}

// Close closes the stores of every module.
func (p *BlockProcessor) Close() error {
	return closeModules(p.modules)
}
