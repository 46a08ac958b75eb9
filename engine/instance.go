package engine

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/portway-io/wasm-bridge"
	"github.com/portway-io/wasm-bridge/bridge"
	"github.com/portway-io/wasm-bridge/errors"
)

var processEpoch = time.Now()

// monotonicNow returns microseconds elapsed since process start.
func monotonicNow() uint64 {
	return uint64(time.Since(processEpoch).Microseconds())
}

// Instance is one running guest wired to a bridge.
//
// Instance is NOT safe for concurrent use: Init, AdvanceExecution and Run
// must all be called from the same goroutine. After Init, the guest drives
// its own progress through zero-delay timers, so embedders normally call
// Init once and then block in Run.
type Instance struct {
	mod       api.Module
	bridge    *bridge.Bridge
	diag      wasmbridge.Diagnostics
	log       *zap.Logger
	initFn    api.Function
	advanceFn api.Function
	epoch     uint64
}

// Bridge returns the instance's bridge, for inspection and teardown.
func (i *Instance) Bridge() *bridge.Bridge {
	return i.bridge
}

// Init hands control to the guest for the first time. maxLogLevel caps the
// verbosity of the guest's log emissions (1 = errors only, 5 = trace).
func (i *Instance) Init(ctx context.Context, maxLogLevel uint32) error {
	if i.initFn == nil {
		return errors.NewMissingExportsError([]string{ExportInit})
	}
	if _, err := i.initFn.Call(ctx, uint64(maxLogLevel)); err != nil {
		return errors.Wrap(errors.PhaseGuest, errors.KindInvalidState, err, "guest init failed")
	}
	return nil
}

// AdvanceExecution asks the guest to make progress once. Most embedders
// never need it: after Init the guest re-arms itself through timers.
func (i *Instance) AdvanceExecution(ctx context.Context) error {
	if i.advanceFn == nil {
		return errors.NewMissingExportsError([]string{ExportAdvanceExecution})
	}
	if _, err := i.advanceFn.Call(ctx); err != nil {
		return errors.Wrap(errors.PhaseGuest, errors.KindInvalidState, err, "guest advance_execution failed")
	}
	return nil
}

// Run drives the bridge's dispatch loop until ctx is done or the guest
// reports a fatal panic.
func (i *Instance) Run(ctx context.Context) error {
	return i.bridge.Run(ctx)
}

// Close engages the kill switch and releases the guest module.
func (i *Instance) Close(ctx context.Context) error {
	i.bridge.KillAll()
	return i.mod.Close(ctx)
}

// guestFuncs adapts the guest's exports to the wasmbridge.Guest interface.
type guestFuncs struct {
	timerFired       api.Function
	connOpenedSingle api.Function
	connOpenedMulti  api.Function
	connReset        api.Function
	streamWritable   api.Function
	streamMessage    api.Function
	streamOpened     api.Function
	streamReset      api.Function
}

func newGuestFuncs(mod api.Module) (*guestFuncs, error) {
	g := &guestFuncs{}
	targets := map[string]*api.Function{
		exportTimerFired:       &g.timerFired,
		exportConnOpenedSingle: &g.connOpenedSingle,
		exportConnOpenedMulti:  &g.connOpenedMulti,
		exportConnReset:        &g.connReset,
		exportStreamWritable:   &g.streamWritable,
		exportStreamMessage:    &g.streamMessage,
		exportStreamOpened:     &g.streamOpened,
		exportStreamReset:      &g.streamReset,
	}

	var missing []string
	for _, name := range reentryExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			missing = append(missing, name)
			continue
		}
		*targets[name] = fn
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingExportsError(missing)
	}
	return g, nil
}

func (g *guestFuncs) TimerFired(ctx context.Context, id uint32) error {
	_, err := g.timerFired.Call(ctx, uint64(id))
	return err
}

func (g *guestFuncs) ConnectionOpenedSingleStream(ctx context.Context, connID, initialWritableBytes uint32, writeClosable bool) error {
	var closable uint64
	if writeClosable {
		closable = 1
	}
	_, err := g.connOpenedSingle.Call(ctx, uint64(connID), uint64(initialWritableBytes), closable)
	return err
}

func (g *guestFuncs) ConnectionOpenedMultiStream(ctx context.Context, connID, handshakeBuffer uint32) error {
	_, err := g.connOpenedMulti.Call(ctx, uint64(connID), uint64(handshakeBuffer))
	return err
}

func (g *guestFuncs) ConnectionReset(ctx context.Context, connID, messageBuffer uint32) error {
	_, err := g.connReset.Call(ctx, uint64(connID), uint64(messageBuffer))
	return err
}

func (g *guestFuncs) StreamWritableBytes(ctx context.Context, connID, streamID, numBytes uint32) error {
	_, err := g.streamWritable.Call(ctx, uint64(connID), uint64(streamID), uint64(numBytes))
	return err
}

func (g *guestFuncs) StreamMessage(ctx context.Context, connID, streamID, messageBuffer uint32) error {
	_, err := g.streamMessage.Call(ctx, uint64(connID), uint64(streamID), uint64(messageBuffer))
	return err
}

func (g *guestFuncs) StreamOpened(ctx context.Context, connID, streamID uint32, outbound bool, initialWritableBytes uint32) error {
	var dir uint64
	if outbound {
		dir = 1
	}
	_, err := g.streamOpened.Call(ctx, uint64(connID), uint64(streamID), dir, uint64(initialWritableBytes))
	return err
}

func (g *guestFuncs) StreamReset(ctx context.Context, connID, streamID uint32) error {
	_, err := g.streamReset.Call(ctx, uint64(connID), uint64(streamID))
	return err
}
