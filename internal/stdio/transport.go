// Package stdio drives the framed message stream against the peer's
// stdin/stdout pipes: one inbound loop decoding peer reports and one
// outbound loop framing bus traffic to the peer.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tabwire/tabwire/internal/bus"
	"github.com/tabwire/tabwire/internal/logx"
	"github.com/tabwire/tabwire/internal/metrics"
	"github.com/tabwire/tabwire/internal/protocol"
	"github.com/tabwire/tabwire/internal/state"
)

// Transport owns the two loops over the peer pipes. The loops share nothing
// directly; all coordination goes through the bus and the store.
type Transport struct {
	in    io.Reader
	out   io.Writer
	bus   *bus.Bus
	store *state.Store
	rec   *bus.Receiver
}

// New returns a transport over the given pipes and subscribes it to the
// bus, so commands published before Run starts are not lost. In production
// the pipes are os.Stdin and os.Stdout; tests pass in-memory pipes.
func New(in io.Reader, out io.Writer, b *bus.Bus, store *state.Store) *Transport {
	return &Transport{in: in, out: out, bus: b, store: store, rec: b.Subscribe()}
}

// Run starts the outbound loop and runs the inbound loop until one of them
// ends. It returns nil when the peer disconnects cleanly (EOF on the frame
// stream); any other return is a transport failure. Either way the process
// has lost its only peer and should exit.
func (t *Transport) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- t.writeLoop(ctx) }()
	go func() { errCh <- t.readLoop(ctx) }()
	err := <-errCh
	cancel()
	return err
}

// writeLoop frames every local-origin bus message to the peer. Peer-origin
// messages are skipped: they were read off this same pipe and echoing them
// back would make the peer talk to itself.
func (t *Transport) writeLoop(ctx context.Context) error {
	w := bufio.NewWriter(t.out)
	for {
		msg, err := t.rec.Recv(ctx)
		if err != nil {
			var lag *bus.LagError
			switch {
			case errors.As(err, &lag):
				metrics.LagDropped(lag.Missed)
				logx.Log.Warn().Uint64("missed", lag.Missed).Msg("peer writer lagged bus, commands dropped")
				continue
			case errors.Is(err, bus.ErrClosed):
				return nil
			default:
				return err
			}
		}
		if msg.Origin == bus.OriginPeer {
			continue
		}
		if err := protocol.WriteFrame(w, msg.Payload); err != nil {
			return fmt.Errorf("write to peer: %w", err)
		}
		metrics.FrameWritten()
	}
}

// readLoop decodes peer frames until the stream ends. A malformed payload
// is skipped (the length prefix already delimited the next frame); EOF
// means the peer is gone and ends the loop cleanly.
func (t *Transport) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := protocol.ReadFrame(t.in)
		if err != nil {
			var malformed *protocol.MalformedError
			switch {
			case errors.Is(err, protocol.ErrTruncated):
				metrics.FrameError("truncated")
				logx.Log.Info().Msg("peer disconnected")
				return nil
			case errors.As(err, &malformed):
				metrics.FrameError("malformed")
				logx.Log.Warn().Err(err).Msg("skipping malformed peer frame")
				continue
			default:
				metrics.FrameError("io")
				return fmt.Errorf("read from peer: %w", err)
			}
		}
		metrics.FrameRead()
		t.dispatch(raw)
	}
}

// dispatch routes one decoded peer frame: state reports land in the store
// and are rebroadcast for WebSocket subscribers; everything else is noise.
func (t *Transport) dispatch(raw json.RawMessage) {
	typ := protocol.PeekType(raw)
	switch typ {
	case protocol.TypeTabs:
		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logx.Log.Warn().Err(err).Msg("ignoring unparseable tabs report")
			return
		}
		t.store.ReplaceTabs(msg.Tabs)
		logx.Log.Debug().Int("count", len(msg.Tabs)).Msg("tab list updated")
		t.rebroadcast(typ, raw)
	case protocol.TypeInjectionResult, protocol.TypeHTMLResult, protocol.TypeCaptureResult:
		t.store.AppendResult(raw)
		t.rebroadcast(typ, raw)
	case protocol.TypeAuditLog:
		// Discarded on purpose: audit entries are the peer's own
		// bookkeeping and carry nothing the bridge serves.
	case "":
		logx.Log.Warn().Msg("peer frame without a type field")
	default:
		logx.Log.Warn().Str("type", typ).Msg("unrecognized peer message type")
	}
}

func (t *Transport) rebroadcast(typ string, raw json.RawMessage) {
	t.bus.Publish(bus.Message{Origin: bus.OriginPeer, Type: typ, Payload: raw})
	metrics.Published("peer")
}
