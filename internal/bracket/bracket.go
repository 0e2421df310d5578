package bracket

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/kartikbazzad/gifdome/internal/apperror"
)

// WeightedEntry is one distinct (post-duplicate-collapse) animation and the
// number of distinct submitters who submitted it or one of its duplicates.
type WeightedEntry struct {
	AnimationID string
	Weight      int
}

// NotEnoughSubmissionsError reports that fewer unique entries exist than
// the bracket needs.
type NotEnoughSubmissionsError struct {
	Actual int
	Needed int
}

func (e *NotEnoughSubmissionsError) Error() string {
	return fmt.Sprintf("not enough submissions: have %d, need %d", e.Actual, e.Needed)
}

// MatchupPlan describes one matchup row to insert.
type MatchupPlan struct {
	Index        int
	Round        int
	AnimationA   *string
	AnimationB   *string
	DurationSecs int
}

// LoadWeightedSubmissions queries the tournament's submissions grouped by
// COALESCE(duplicates.primary_animation_id, submissions.animation_id),
// counting distinct submitters per group, ordered by weight descending.
func LoadWeightedSubmissions(ctx context.Context, tx pgx.Tx, tournamentID string) ([]WeightedEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT
			COALESCE(d.primary_animation_id, s.animation_id) AS unique_animation_id,
			COUNT(DISTINCT s.submitter_id) AS weight
		FROM submissions s
		LEFT JOIN duplicates d ON d.duplicate_animation_id = s.animation_id
		WHERE s.tournament_id = $1
		GROUP BY unique_animation_id
		ORDER BY weight DESC
	`, tournamentID)
	if err != nil {
		return nil, apperror.ExternalIOErr("querying weighted submissions", err)
	}
	defer rows.Close()

	var entries []WeightedEntry
	for rows.Next() {
		var e WeightedEntry
		if err := rows.Scan(&e.AnimationID, &e.Weight); err != nil {
			return nil, apperror.ExternalIOErr("scanning weighted submission", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ExternalIOErr("iterating weighted submissions", err)
	}
	return entries, nil
}

// Seed buckets entries by weight, shuffles within each bucket, and takes
// the top N entries (seed 0 is heaviest), following create_bracket's
// greedy descending-weight bucket fill.
func Seed(entries []WeightedEntry, n int, rng *rand.Rand) ([]string, error) {
	if len(entries) < n {
		return nil, &NotEnoughSubmissionsError{Actual: len(entries), Needed: n}
	}

	buckets := make(map[int][]string)
	for _, e := range entries {
		buckets[e.Weight] = append(buckets[e.Weight], e.AnimationID)
	}

	weights := make([]int, 0, len(buckets))
	for w := range buckets {
		weights = append(weights, w)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(weights)))

	var sorted []string
	for _, w := range weights {
		bucket := buckets[w]
		rng.Shuffle(len(bucket), func(i, j int) { bucket[i], bucket[j] = bucket[j], bucket[i] })

		remaining := n - len(sorted)
		if remaining <= 0 {
			break
		}
		if len(bucket) <= remaining {
			sorted = append(sorted, bucket...)
		} else {
			sorted = append(sorted, bucket[:remaining]...)
			break
		}
	}
	return sorted, nil
}

// Plan builds the full matchup plan for a tournament of the given round
// count from an already-seeded top-N entry list: N/2 first-round matchups
// populated with animations, plus null-animation placeholders for every
// later round, in dense index order.
func Plan(seededEntries []string, rounds int, roundLengths []int) []MatchupPlan {
	n := len(seededEntries)
	seeds := GenerateSeeds(rounds)

	var plans []MatchupPlan
	for i := 0; i < n/2; i++ {
		a := seededEntries[seeds[2*i]]
		b := seededEntries[seeds[2*i+1]]
		plans = append(plans, MatchupPlan{
			Index:        i,
			Round:        rounds,
			AnimationA:   &a,
			AnimationB:   &b,
			DurationSecs: roundLengths[rounds-1],
		})
	}

	index := n / 2
	for round := rounds - 1; round >= 1; round-- {
		count := RoundMatchupCount(round)
		for j := 0; j < count; j++ {
			plans = append(plans, MatchupPlan{
				Index:        index,
				Round:        round,
				DurationSecs: roundLengths[round-1],
			})
			index++
		}
	}
	return plans
}
