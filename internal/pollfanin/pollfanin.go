// Package pollfanin coalesces poll-update webhook events into vote-count
// writes. Telegram-style poll updates arrive far more densely than the
// scheduler needs to observe them, so incoming updates are coalesced by
// poll id, keeping only the highest update_id seen per poll, before being
// applied to the matchups table.
package pollfanin

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/chatmodel"
	"github.com/kartikbazzad/gifdome/internal/config"
	"github.com/kartikbazzad/gifdome/internal/dbguard"
)

// Update is one inbound poll update, carrying the update_id its Poll
// payload arrived with so stale out-of-order updates can be discarded.
type Update struct {
	UpdateID int64
	Poll     chatmodel.Poll
}

// Loop coalesces poll updates read from in and applies them to the
// database, until ctx is cancelled or in is closed.
type Loop struct {
	pool  *pgxpool.Pool
	guard *dbguard.Guard
	poll  config.Poll
	in    <-chan Update
}

// New constructs a Loop reading from in.
func New(pool *pgxpool.Pool, guard *dbguard.Guard, pollCfg config.Poll, in <-chan Update) *Loop {
	return &Loop{pool: pool, guard: guard, poll: pollCfg, in: in}
}

// Run blocks, coalescing and applying poll updates until ctx is done or the
// input channel is closed.
func (l *Loop) Run(ctx context.Context) {
	lastApplied := make(map[string]int64) // poll id -> highest update_id applied

	for {
		var u Update
		var ok bool
		select {
		case <-ctx.Done():
			return
		case u, ok = <-l.in:
			if !ok {
				return
			}
		}

		latest := coalesce(u, l.in)
		if latest.UpdateID <= lastApplied[latest.Poll.ID] {
			continue
		}
		lastApplied[latest.Poll.ID] = latest.UpdateID

		err := l.guard.Do(func() error {
			return l.apply(ctx, latest.Poll)
		})
		if err != nil {
			slog.Default().ErrorContext(ctx, "applying poll update", "poll_id", latest.Poll.ID, "error", err)
		}
	}
}

// coalesce drains in non-blockingly, keeping only the highest-update_id
// update per poll id, and returns the one for u's poll.
func coalesce(u Update, in <-chan Update) Update {
	latest := map[string]Update{u.Poll.ID: u}

drain:
	for {
		select {
		case next, ok := <-in:
			if !ok {
				break drain
			}
			if cur, exists := latest[next.Poll.ID]; !exists || next.UpdateID > cur.UpdateID {
				latest[next.Poll.ID] = next
			}
		default:
			break drain
		}
	}

	return latest[u.Poll.ID]
}

func (l *Loop) apply(ctx context.Context, p chatmodel.Poll) error {
	var votesA, votesB int32
	for _, opt := range p.Options {
		switch opt.Text {
		case l.poll.OptionAText:
			votesA = opt.VoterCount
		case l.poll.OptionBText:
			votesB = opt.VoterCount
		}
	}

	tag, err := l.pool.Exec(ctx, `
		UPDATE matchups
		SET animation_a_votes = $1, animation_b_votes = $2
		WHERE poll_id = $3 AND state = 'started'::matchup_state
	`, votesA, votesB, p.ID)
	if err != nil {
		return apperror.ExternalIOErr("updating matchup votes", err)
	}
	if tag.RowsAffected() > 1 {
		return apperror.IntegrityErr("poll id matched more than one started matchup", nil)
	}
	return nil
}
