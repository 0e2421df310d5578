package bracket

import (
	"context"
	"math/rand"

	"github.com/jackc/pgx/v5"

	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/models"
)

// Create builds the bracket for tournamentID and inserts every matchup row
// with state not_started. rng should be freshly seeded per call by the
// caller (e.g. from crypto/rand) since math/rand alone is not suitable as a
// long-lived global source across concurrent tournaments.
func Create(ctx context.Context, tx pgx.Tx, tournamentID string, rounds int, roundLengths []int, rng *rand.Rand) error {
	entries, err := LoadWeightedSubmissions(ctx, tx, tournamentID)
	if err != nil {
		return err
	}

	n := 1 << uint(rounds)
	seeded, err := Seed(entries, n, rng)
	if err != nil {
		return err
	}

	plans := Plan(seeded, rounds, roundLengths)

	for _, p := range plans {
		tag, err := tx.Exec(ctx, `
			INSERT INTO matchups (tournament_id, index, round, animation_a_id, animation_b_id, state, duration_secs)
			VALUES ($1, $2, $3, $4, $5, $6::matchup_state, $7)
		`, tournamentID, p.Index, p.Round, p.AnimationA, p.AnimationB, models.MatchupNotStarted, p.DurationSecs)
		if err != nil {
			return apperror.ExternalIOErr("inserting matchup", err)
		}
		if tag.RowsAffected() != 1 {
			return apperror.IntegrityErr("matchup insert affected unexpected row count", nil)
		}
	}
	return nil
}
