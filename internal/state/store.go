// Package state holds the bridge's shared in-memory state: the tab list
// reported by the peer, registered scripts, routing rules, and a bounded
// history of peer result reports.
package state

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/tabwire/tabwire/internal/protocol"
)

// ResultHistoryLimit bounds the result history. Once full, the oldest
// record is evicted for each new one.
const ResultHistoryLimit = 100

// Store is the sole owner of the bridge's mutable collections. All methods
// are safe for concurrent use and never perform I/O while holding the lock;
// reads return snapshot copies, never internal slices.
type Store struct {
	mu      sync.Mutex
	tabs    []protocol.TabInfo
	scripts map[string]protocol.Script
	rules   []protocol.Rule
	results []json.RawMessage
}

// New returns an empty store.
func New() *Store {
	return &Store{scripts: make(map[string]protocol.Script)}
}

// ReplaceTabs swaps the entire tab list for the one just reported. Tabs the
// peer omitted are gone; there is no merging or identity tracking across
// reports.
func (s *Store) ReplaceTabs(tabs []protocol.TabInfo) {
	next := make([]protocol.TabInfo, len(tabs))
	copy(next, tabs)
	s.mu.Lock()
	s.tabs = next
	s.mu.Unlock()
}

// Tabs returns a copy of the current tab list.
func (s *Store) Tabs() []protocol.TabInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.TabInfo, len(s.tabs))
	copy(out, s.tabs)
	return out
}

// UpsertScript registers a script, replacing any prior entry with the same ID.
func (s *Store) UpsertScript(sc protocol.Script) {
	s.mu.Lock()
	s.scripts[sc.ID] = sc
	s.mu.Unlock()
}

// Scripts returns the registered scripts sorted by ID.
func (s *Store) Scripts() []protocol.Script {
	s.mu.Lock()
	out := make([]protocol.Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		out = append(out, sc)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplaceRules swaps the routing rule list wholesale.
func (s *Store) ReplaceRules(rules []protocol.Rule) {
	next := make([]protocol.Rule, len(rules))
	copy(next, rules)
	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
}

// Rules returns a copy of the current rule list.
func (s *Store) Rules() []protocol.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// AppendResult records one peer result report, evicting the oldest record
// once the history exceeds ResultHistoryLimit. The store keeps its own copy
// of rec.
func (s *Store) AppendResult(rec json.RawMessage) {
	cp := make(json.RawMessage, len(rec))
	copy(cp, rec)
	s.mu.Lock()
	s.results = append(s.results, cp)
	if len(s.results) > ResultHistoryLimit {
		over := len(s.results) - ResultHistoryLimit
		s.results = append(s.results[:0], s.results[over:]...)
	}
	s.mu.Unlock()
}

// Results returns the result history, oldest first.
func (s *Store) Results() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, len(s.results))
	copy(out, s.results)
	return out
}
