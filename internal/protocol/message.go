package protocol

import "encoding/json"

// Message type tags carried in the "type" field of every wire object.
//
// Outbound (bridge → peer) command types.
const (
	TypeInject     = "inject"
	TypeNavigate   = "navigate"
	TypeScroll     = "scroll"
	TypeResize     = "resize"
	TypeClick      = "click"
	TypeTypeText   = "type"
	TypeCapture    = "capture"
	TypeGetHTML    = "get_html"
	TypeSetRules   = "set_rules"
	TypeSyncScript = "sync_script"
)

// Inbound (peer → bridge) report types.
const (
	TypeTabs            = "tabs"
	TypeInjectionResult = "injection_result"
	TypeHTMLResult      = "html_result"
	TypeCaptureResult   = "capture_result"
	TypeAuditLog        = "audit_log"
)

// TargetActive addresses whatever tab the peer considers focused, instead
// of a numeric tab id.
const TargetActive = "active"

// TabInfo describes one browser tab as reported by the peer. All fields are
// optional; the peer omits what it does not know.
type TabInfo struct {
	ID    *int    `json:"id,omitempty"`
	URL   *string `json:"url,omitempty"`
	Title *string `json:"title,omitempty"`
}

// Script is a user script registered with the bridge, keyed by ID.
type Script struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Path    string `json:"path"`
}

// Rule is an opaque routing rule. The bridge only forwards rules; matching
// and evaluation happen on the peer.
type Rule struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
	Script  string `json:"script"`
	Enabled bool   `json:"enabled"`
}

// Message is the union of every command and event exchanged over the wire,
// discriminated by Type. Each variant populates its own subset of fields;
// everything else stays zero and is omitted from the JSON encoding.
//
// TabID is either a numeric tab id or the string "active".
type Message struct {
	Type string `json:"type"`

	// Command targeting, shared by most command variants.
	TabID any `json:"tabId,omitempty"`

	// inject: script body to run in the target tab.
	Script string `json:"script,omitempty"`

	// navigate.
	URL string `json:"url,omitempty"`

	// scroll offsets.
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`

	// resize viewport.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// click and type.
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`

	// set_rules.
	Rules []Rule `json:"rules,omitempty"`

	// sync_script.
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
	Path    string `json:"path,omitempty"`

	// tabs report.
	Tabs []TabInfo `json:"tabs,omitempty"`
}

// Envelope is the minimal view of a wire object used for dispatch: only the
// discriminator is decoded, the rest of the payload stays raw.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType extracts the "type" field from a raw wire object. It returns an
// empty string when the field is absent or not a string.
func PeekType(raw json.RawMessage) string {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Type
}

// SyncScriptMessage builds the sync_script event for a script, used both by
// the ingress sync endpoint and for per-subscriber catch-up on connect.
func SyncScriptMessage(s Script) Message {
	return Message{Type: TypeSyncScript, ID: s.ID, Content: s.Content, Path: s.Path}
}
