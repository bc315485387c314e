// Package api implements the HTTP ingress surface: command submission
// endpoints that publish to the bus and snapshot endpoints that read the
// store. Command endpoints are fire-and-forget; results arrive later as
// peer reports in the result history.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/tabwire/tabwire/internal/bus"
	"github.com/tabwire/tabwire/internal/logx"
	"github.com/tabwire/tabwire/internal/metrics"
	"github.com/tabwire/tabwire/internal/protocol"
	"github.com/tabwire/tabwire/internal/state"
)

// API holds the handler dependencies.
type API struct {
	Bus   *bus.Bus
	Store *state.Store
}

// publish puts a validated command on the bus and writes the ack. From here
// on the message is an opaque payload; validation already happened at the
// request boundary.
func (a *API) publish(w http.ResponseWriter, msg protocol.Message, ack any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode command")
		return
	}
	a.Bus.Publish(bus.Message{Origin: bus.OriginLocal, Type: msg.Type, Payload: payload})
	metrics.Published("local")
	writeJSON(w, http.StatusOK, ack)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// targetOrActive applies the default tab target. A numeric id passes
// through; absent means the peer's active tab.
func targetOrActive(tabID any) any {
	if tabID == nil {
		return protocol.TargetActive
	}
	return tabID
}

// Inject submits a script body for execution in a tab.
func (a *API) Inject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID  any    `json:"tabId"`
		Script string `json:"script"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Script == "" {
		writeError(w, http.StatusBadRequest, "missing script")
		return
	}
	target := targetOrActive(req.TabID)
	a.publish(w,
		protocol.Message{Type: protocol.TypeInject, TabID: target, Script: req.Script},
		map[string]any{"status": "sent", "target": target})
}

// Navigate points a tab at a URL.
func (a *API) Navigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID any    `json:"tabId"`
		URL   string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		req.URL = "https://google.com"
	}
	a.publish(w,
		protocol.Message{Type: protocol.TypeNavigate, TabID: targetOrActive(req.TabID), URL: req.URL},
		map[string]string{"status": "sent"})
}

// Scroll scrolls a tab by the given offsets.
func (a *API) Scroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID any  `json:"tabId"`
		X     *int `json:"x"`
		Y     *int `json:"y"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	a.publish(w,
		protocol.Message{Type: protocol.TypeScroll, TabID: targetOrActive(req.TabID), X: req.X, Y: req.Y},
		map[string]string{"status": "sent"})
}

// Resize sets the viewport size.
func (a *API) Resize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Width == 0 {
		req.Width = 1280
	}
	if req.Height == 0 {
		req.Height = 800
	}
	a.publish(w,
		protocol.Message{Type: protocol.TypeResize, Width: req.Width, Height: req.Height},
		map[string]string{"status": "sent"})
}

// Click clicks the element matched by a selector. A selector has no sane
// default, so it is required.
func (a *API) Click(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID    any    `json:"tabId"`
		Selector string `json:"selector"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Selector == "" {
		writeError(w, http.StatusBadRequest, "missing selector")
		return
	}
	a.publish(w,
		protocol.Message{Type: protocol.TypeClick, TabID: targetOrActive(req.TabID), Selector: req.Selector},
		map[string]string{"status": "sent"})
}

// TypeText types text into the element matched by a selector.
func (a *API) TypeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID    any    `json:"tabId"`
		Selector string `json:"selector"`
		Text     string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Selector == "" {
		writeError(w, http.StatusBadRequest, "missing selector")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "missing text")
		return
	}
	a.publish(w,
		protocol.Message{Type: protocol.TypeTypeText, TabID: targetOrActive(req.TabID), Selector: req.Selector, Text: req.Text},
		map[string]string{"status": "sent"})
}

// Capture requests a screenshot of a tab.
func (a *API) Capture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID any `json:"tabId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	a.publish(w,
		protocol.Message{Type: protocol.TypeCapture, TabID: targetOrActive(req.TabID)},
		map[string]string{"status": "sent"})
}

// HTML requests the rendered HTML of a tab.
func (a *API) HTML(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID any `json:"tabId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	a.publish(w,
		protocol.Message{Type: protocol.TypeGetHTML, TabID: targetOrActive(req.TabID)},
		map[string]string{"status": "sent"})
}

// SetRules replaces the routing rule list and broadcasts it to the peer.
// The request body is a JSON array of rules.
func (a *API) SetRules(w http.ResponseWriter, r *http.Request) {
	var rules []protocol.Rule
	if !decodeBody(w, r, &rules) {
		return
	}
	a.Store.ReplaceRules(rules)
	a.publish(w,
		protocol.Message{Type: protocol.TypeSetRules, Rules: rules},
		map[string]any{"status": "rules_broadcasted", "count": len(rules)})
}

// Sync registers a script and broadcasts it as a sync_script event. This is
// the ingress point the file watcher calls.
func (a *API) Sync(w http.ResponseWriter, r *http.Request) {
	var req protocol.Script
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "missing content")
		return
	}
	a.Store.UpsertScript(req)
	a.publish(w,
		protocol.SyncScriptMessage(req),
		map[string]string{"status": "synced", "id": req.ID})
}

// Tabs returns a snapshot of the current tab list.
func (a *API) Tabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tabs": a.Store.Tabs()})
}

// Scripts returns a snapshot of the registered scripts.
func (a *API) Scripts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scripts": a.Store.Scripts()})
}

// Rules returns a snapshot of the current routing rules.
func (a *API) Rules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rules": a.Store.Rules()})
}

// Results returns the result history, oldest first.
func (a *API) Results(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"results": a.Store.Results()})
}

// Healthz reports liveness.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
