package backend

import (
	"context"

	"github.com/m3rciful/kcbot/assistant"
)

// Resolver picks the active backend for one event: the document store when
// fully configured, else the relational store, else the in-memory fallback.
// Selection happens per call so tests (and reconfiguration) can swap slots.
type Resolver struct {
	Notion   assistant.Backend
	Postgres assistant.Backend
	Memory   assistant.Backend
}

// Resolve returns the single backend serving the current event.
func (r *Resolver) Resolve(context.Context) assistant.Backend {
	if r.Notion != nil {
		return r.Notion
	}
	if r.Postgres != nil {
		return r.Postgres
	}
	return r.Memory
}
