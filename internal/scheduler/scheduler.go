// Package scheduler runs the periodic tick that detects expired matchups
// and advances them.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/kartikbazzad/gifdome/internal/advancer"
	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/dbguard"
)

// Scheduler wraps a cron.Cron driving the expiry-detection tick.
type Scheduler struct {
	cron    *cron.Cron
	pool    *pgxpool.Pool
	guard   *dbguard.Guard
	deps    advancer.Deps
	timeout time.Duration
}

// New constructs a Scheduler that ticks every intervalSecs seconds, each
// tick bounded by timeoutSecs.
func New(pool *pgxpool.Pool, guard *dbguard.Guard, deps advancer.Deps, intervalSecs, timeoutSecs uint16) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	s := &Scheduler{cron: c, pool: pool, guard: guard, deps: deps, timeout: time.Duration(timeoutSecs) * time.Second}

	spec := "@every " + (time.Duration(intervalSecs) * time.Second).String()
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, apperror.UnexpectedErr("registering scheduler job", err)
	}
	return s, nil
}

// Start begins the periodic tick. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// tick runs one expiry-detection pass, bounded by s.timeout. Any error is
// logged and dropped; the next tick simply tries again.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	expired, err := s.expiredMatchups(ctx)
	if err != nil {
		slog.Default().ErrorContext(ctx, "listing expired matchups", "error", err)
		return
	}

	for _, m := range expired {
		err := s.guard.Do(func() error {
			return s.advanceOne(ctx, m)
		})
		if err != nil {
			slog.Default().ErrorContext(ctx, "advancing expired matchup", "tournament_id", m.tournamentID, "matchup_index", m.index, "error", err)
		}
	}
}

type expiredMatchup struct {
	tournamentID string
	index        int32
	messageID    int64
	chatID       int64
}

// expiredMatchups selects started matchups whose round has elapsed, have
// received the configured minimum votes, and are not tied.
func (s *Scheduler) expiredMatchups(ctx context.Context) ([]expiredMatchup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.tournament_id, m.index, m.message_id, t.chat_id
		FROM matchups m
		JOIN tournaments t ON t.id = m.tournament_id
		WHERE m.state = 'started'::matchup_state
		  AND m.started_at + make_interval(secs => m.duration_secs) <= now()
		  AND m.animation_a_votes != m.animation_b_votes
		  AND m.animation_a_votes + m.animation_b_votes >= t.min_votes
	`)
	if err != nil {
		return nil, apperror.ExternalIOErr("querying expired matchups", err)
	}
	defer rows.Close()

	var out []expiredMatchup
	for rows.Next() {
		var m expiredMatchup
		if err := rows.Scan(&m.tournamentID, &m.index, &m.messageID, &m.chatID); err != nil {
			return nil, apperror.ExternalIOErr("scanning expired matchup", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ExternalIOErr("iterating expired matchups", err)
	}
	return out, nil
}

// advanceOne stops the matchup's poll, marks it finished, and advances the
// bracket, all inside one transaction.
func (s *Scheduler) advanceOne(ctx context.Context, m expiredMatchup) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperror.ExternalIOErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := s.deps.Chat.StopPoll(ctx, m.chatID, m.messageID); err != nil {
		return apperror.ExternalIOErr("stopping poll", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE matchups SET state = 'finished'::matchup_state, finished_at = now()
		WHERE tournament_id = $1 AND index = $2 AND state = 'started'::matchup_state
	`, m.tournamentID, m.index)
	if err != nil {
		return apperror.ExternalIOErr("marking matchup finished", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("matchup finish update affected unexpected row count", nil)
	}

	if err := advancer.AdvanceMatchup(ctx, tx, s.deps, m.chatID, m.tournamentID, m.index); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.ExternalIOErr("committing advance", err)
	}
	return nil
}
