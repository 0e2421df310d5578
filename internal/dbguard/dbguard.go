// Package dbguard serializes every mutating database operation behind a
// single process-wide mutex. It is a deliberate correctness crutch: rather
// than relying solely on transaction isolation and the schema's partial
// unique indexes to resolve every race between the webhook handlers and the
// scheduler tick, each logical operation (one command, one submission, one
// scheduler tick) runs holding this lock for its entire duration, giving a
// global serial order. See the design notes in SPEC_FULL.md for the
// documented path off this crutch. Only the entry points (webhook,
// pollfanin, scheduler) take the Guard; the packages doing the database
// work (command, submission, advancer, bracket) see only a *pgxpool.Pool
// or a live pgx.Tx, which keeps that migration confined to the entry points.
package dbguard

import "sync"

// Guard is held for the duration of one logical database operation.
type Guard struct {
	mu sync.Mutex
}

// New returns an unlocked Guard.
func New() *Guard {
	return &Guard{}
}

// Do runs fn while holding the guard.
func (g *Guard) Do(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
