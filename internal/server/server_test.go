package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tabwire/tabwire/internal/bus"
	"github.com/tabwire/tabwire/internal/config"
	"github.com/tabwire/tabwire/internal/protocol"
	"github.com/tabwire/tabwire/internal/state"
	"github.com/tabwire/tabwire/internal/stdio"
)

func newServer(t *testing.T) (*httptest.Server, *bus.Bus, *state.Store) {
	t.Helper()
	var cfg config.Config
	cfg.SetDefaults()
	b := bus.New()
	store := state.New()
	ts := httptest.NewServer(New(cfg, b, store))
	t.Cleanup(ts.Close)
	t.Cleanup(b.Close)
	return ts, b, store
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("body: %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tabwire_bus_published_total") {
		t.Fatalf("metrics exposition missing bridge collectors:\n%s", body)
	}
}

// TestEndToEndInject covers the full local→peer→local cycle: an HTTP inject
// lands as a frame on the peer pipe, and the peer's result report becomes
// readable from the result history endpoint.
func TestEndToEndInject(t *testing.T) {
	ts, b, store := newServer(t)

	peerInR, peerInW := io.Pipe()
	peerOutR, peerOutW := io.Pipe()
	tr := stdio.New(peerInR, peerOutW, b, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tr.Run(ctx) }()
	defer peerInW.Close()

	resp, err := http.Post(ts.URL+"/inject", "application/json",
		strings.NewReader(`{"tabId":5,"script":"alert(1)"}`))
	if err != nil {
		t.Fatalf("POST /inject: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inject status: got %d", resp.StatusCode)
	}

	frameCh := make(chan map[string]any, 1)
	go func() {
		raw, err := protocol.ReadFrame(peerOutR)
		if err != nil {
			return
		}
		var m map[string]any
		if json.Unmarshal(raw, &m) == nil {
			frameCh <- m
		}
	}()
	select {
	case frame := <-frameCh:
		if frame["type"] != "inject" || frame["tabId"] != float64(5) || frame["script"] != "alert(1)" {
			t.Fatalf("peer frame: got %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame reached the peer")
	}

	if err := protocol.WriteFrame(peerInW, []byte(`{"type":"injection_result","tabId":5,"ok":true}`)); err != nil {
		t.Fatalf("peer result frame: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/results")
		if err != nil {
			t.Fatalf("GET /results: %v", err)
		}
		var body struct {
			Results []map[string]any `json:"results"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode results: %v", err)
		}
		if len(body.Results) == 1 {
			if body.Results[0]["type"] != "injection_result" || body.Results[0]["ok"] != true {
				t.Fatalf("result record: got %v", body.Results[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("result never reached the history")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCommandValidationSurfacesAsJSONError(t *testing.T) {
	ts, _, _ := newServer(t)
	resp, err := http.Post(ts.URL+"/click", "application/json", strings.NewReader(`{"tabId":1}`))
	if err != nil {
		t.Fatalf("POST /click: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "missing selector" {
		t.Fatalf("error: got %q", body["error"])
	}
}
