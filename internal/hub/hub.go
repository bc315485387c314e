// Package hub manages WebSocket subscriber sessions. Each session gets a
// script snapshot on connect, then a live feed of all bus traffic, while
// messages it sends are ingested like peer traffic.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tabwire/tabwire/internal/bus"
	"github.com/tabwire/tabwire/internal/logx"
	"github.com/tabwire/tabwire/internal/metrics"
	"github.com/tabwire/tabwire/internal/protocol"
	"github.com/tabwire/tabwire/internal/state"
)

// Hub accepts subscriber connections and wires them to the bus and store.
type Hub struct {
	Bus   *bus.Bus
	Store *state.Store
}

// Handle upgrades the request and runs the session until either direction
// fails. The send and receive loops share a per-connection context; when
// one loop ends it cancels the other, so neither outlives the connection.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	// Origin checks are disabled: the bridge binds to loopback and serves a
	// trusted local environment, same as its permissive CORS policy.
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer func() {
		_ = c.Close(websocket.StatusInternalError, "session ended")
	}()

	id := uuid.NewString()[:8]
	log := logx.Log.With().Str("subscriber", id).Logger()
	log.Info().Msg("subscriber connected")
	metrics.SubscriberConnected()
	defer metrics.SubscriberDisconnected()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before snapshotting so nothing published in between is
	// missed. A script that syncs during the snapshot may arrive twice;
	// sync_script is idempotent, so that is harmless.
	rec := h.Bus.Subscribe()

	for _, sc := range h.Store.Scripts() {
		payload, err := json.Marshal(protocol.SyncScriptMessage(sc))
		if err != nil {
			continue
		}
		if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
			log.Info().Err(err).Msg("subscriber left during snapshot")
			return
		}
	}

	go h.sendLoop(ctx, cancel, c, rec, log)
	h.recvLoop(ctx, c, log)
	cancel()
	_ = c.Close(websocket.StatusNormalClosure, "")
}

// sendLoop forwards every bus message to the socket as a text frame. A
// lagged receiver skips the lost backlog and keeps going.
func (h *Hub) sendLoop(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, rec *bus.Receiver, log zerolog.Logger) {
	defer cancel()
	for {
		msg, err := rec.Recv(ctx)
		if err != nil {
			var lag *bus.LagError
			if errors.As(err, &lag) {
				metrics.LagDropped(lag.Missed)
				log.Warn().Uint64("missed", lag.Missed).Msg("subscriber lagged bus, skipping ahead")
				continue
			}
			return
		}
		if err := c.Write(ctx, websocket.MessageText, msg.Payload); err != nil {
			return
		}
	}
}

// recvLoop ingests messages from the socket. Tab reports write through to
// the store exactly like peer traffic on stdio, because a subscriber may be
// relaying peer-reported state; anything else is treated as a command for
// the peer.
func (h *Hub) recvLoop(ctx context.Context, c *websocket.Conn, log zerolog.Logger) {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
				log.Info().Msg("subscriber disconnected")
			} else if ctx.Err() == nil {
				log.Info().Err(err).Msg("subscriber read failed")
			}
			return
		}
		typ := protocol.PeekType(data)
		switch typ {
		case protocol.TypeTabs:
			var msg protocol.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Warn().Err(err).Msg("ignoring unparseable tabs report")
				continue
			}
			h.Store.ReplaceTabs(msg.Tabs)
			h.Bus.Publish(bus.Message{Origin: bus.OriginPeer, Type: typ, Payload: data})
			metrics.Published("peer")
		case "":
			log.Warn().Msg("subscriber message without a type field")
		default:
			h.Bus.Publish(bus.Message{Origin: bus.OriginLocal, Type: typ, Payload: data})
			metrics.Published("local")
		}
	}
}
