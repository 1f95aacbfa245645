// Package scriptvm runs user scripts against a block. Each evaluation gets a
// fresh JavaScript runtime populated with the generated accessors, a block
// handle and the store capabilities of the module being run.
package scriptvm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/bindings"
	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
	"github.com/ava-labs/avalanche-streamline/pkg/store"
)

const maxCallStackSize = 1024

var (
	ErrFunctionNotFound = errors.New("script function not found")
	ErrScript           = errors.New("script failed")
)

// Engine holds a compiled script and the accessor registry it runs
// against. It is immutable once built and may be shared.
type Engine struct {
	program  *goja.Program
	registry *bindings.Registry
	env      bindings.Env
	log      *zap.SugaredLogger
}

// New compiles source once. env supplies the logger, contract caller and
// metrics handed to every accessor invocation.
func New(registry *bindings.Registry, name, source string, env bindings.Env) (*Engine, error) {
	if registry == nil {
		registry, _ = bindings.NewRegistry()
	}
	program, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script %s: %w", name, err)
	}
	if env.Log == nil {
		env.Log = zap.NewNop().Sugar()
	}
	return &Engine{
		program:  program,
		registry: registry,
		env:      env,
		log:      env.Log,
	}, nil
}

// RunMap calls fn(block) and returns its result. A result that cannot be
// converted is Null.
func (e *Engine) RunMap(ctx context.Context, fn string, blk *chain.Block) (dynamic.Value, error) {
	var out dynamic.Value
	err := e.run(ctx, blk, func(s *session) error {
		res, err := s.call(fn, s.handle)
		if err != nil {
			return err
		}
		out = s.fromJS("map_output", res)
		return nil
	})
	return out, err
}

// RunStore calls fn(block, s) where s exposes st with the capabilities of
// policy. Writes stay buffered in st; committing is up to the caller.
func (e *Engine) RunStore(ctx context.Context, fn string, blk *chain.Block, st *store.Store, policy store.Policy) (dynamic.Value, error) {
	var out dynamic.Value
	err := e.run(ctx, blk, func(s *session) error {
		acc := store.NewAccessor(st, e.log.With("function", fn), e.env.Metrics)
		res, err := s.call(fn, s.handle, s.storeObject(acc, policy))
		if err != nil {
			return err
		}
		out = s.fromJS("store_output", res)
		return nil
	})
	return out, err
}

func (e *Engine) run(ctx context.Context, blk *chain.Block, body func(*session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	s := &session{
		ctx:    ctx,
		vm:     vm,
		blk:    blk,
		env:    e.env,
		log:    e.log,
		stores: make(map[*goja.Object]*store.Accessor),
	}
	s.install(e.registry)

	err := func() error {
		if _, err := vm.RunProgram(e.program); err != nil {
			return fmt.Errorf("%w: %w", ErrScript, err)
		}
		return body(s)
	}()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
