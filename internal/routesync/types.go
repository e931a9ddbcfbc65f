package routesync

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

// Status values used across Result and SinkResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// Route is one row of the application's route table.
type Route struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

// Result is the aggregate outcome of one sync run. The embedded mutex guards
// Sinks while collaborators report concurrently.
type Result struct {
	sync.Mutex
	Status string                `json:"status"`
	Digest string                `json:"digest"`
	Routes int                   `json:"routes"`
	Sinks  map[string]SinkResult `json:"sinks"`
}

// SinkResult is the outcome of a single collaborator within a sync run.
type SinkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ProbeResult is returned by RunDeepHealth for each collaborator.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Event is published after a successful reconcile.
type Event struct {
	Service string  `json:"service"`
	Digest  string  `json:"digest"`
	Routes  []Route `json:"routes"`
	Removed int64   `json:"removed"`
	Reason  string  `json:"reason,omitempty"`
}

// Digest returns a stable hash of the route table. Order of routes does not
// affect the result.
func Digest(routes []Route) string {
	sorted := Sorted(routes)
	h := sha256.New()
	for _, r := range sorted {
		h.Write([]byte(r.Method))
		h.Write([]byte{' '})
		h.Write([]byte(r.Path))
		h.Write([]byte{' '})
		h.Write([]byte(r.Handler))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Sorted returns a copy of routes ordered by path, then method.
func Sorted(routes []Route) []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}
