// Package server exposes the GET /duplicates/suggestions endpoint used by
// moderators to review clusters of animations findimagedupes considers
// visually similar, narrowed to what was actually submitted to a tournament.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/duplicateindex"
)

// Deps bundles the collaborators the suggestions endpoint needs.
type Deps struct {
	Pool  *pgxpool.Pool
	Index *duplicateindex.Index
}

// Register mounts the suggestions route on r.
func Register(r gin.IRouter, deps Deps) {
	r.GET("/duplicates/suggestions", handleSuggestions(deps))
}

func handleSuggestions(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := c.Query("tournament")
		if input == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tournament query parameter required"})
			return
		}

		tournamentID, ok, err := resolveTournamentID(c.Request.Context(), deps.Pool, input)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "tournament not found"})
			return
		}

		submitted, err := submittedNonDuplicateAnimations(c.Request.Context(), deps.Pool, tournamentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		submittedSet := make(map[string]struct{}, len(submitted))
		for _, id := range submitted {
			submittedSet[id] = struct{}{}
		}

		var suggestions [][]string
		for _, cluster := range deps.Index.Clusters() {
			var filtered []string
			for _, id := range cluster {
				if _, ok := submittedSet[id]; ok {
					filtered = append(filtered, id)
				}
			}
			if len(filtered) >= 2 {
				suggestions = append(suggestions, filtered)
			}
		}
		if suggestions == nil {
			suggestions = [][]string{}
		}

		c.JSON(http.StatusOK, suggestions)
	}
}

// resolveTournamentID resolves input to a tournament id: either a literal
// id, or (if input begins with "@") the most recently created non-aborted
// tournament belonging to the chat with that username.
func resolveTournamentID(ctx context.Context, pool *pgxpool.Pool, input string) (string, bool, error) {
	if len(input) > 0 && input[0] == '@' {
		username := input[1:]
		var id string
		err := pool.QueryRow(ctx, `
			SELECT tournaments.id
			FROM tournaments JOIN chats ON chats.id = tournaments.chat_id
			WHERE chats.username = $1 AND tournaments.state != 'aborted'::tournament_state
			ORDER BY tournaments.created_at DESC
			LIMIT 1
		`, username).Scan(&id)
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		if err != nil {
			return "", false, apperror.ExternalIOErr("resolving tournament by chat username", err)
		}
		return id, true, nil
	}

	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tournaments WHERE id = $1)`, input).Scan(&exists)
	if err != nil {
		return "", false, apperror.ExternalIOErr("checking tournament id", err)
	}
	return input, exists, nil
}

// submittedNonDuplicateAnimations returns the tournament's submitted
// animation ids, excluding any confirmed as someone else's duplicate.
func submittedNonDuplicateAnimations(ctx context.Context, pool *pgxpool.Pool, tournamentID string) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT submissions.animation_id
		FROM submissions
		LEFT JOIN duplicates ON submissions.animation_id = duplicates.duplicate_animation_id
		WHERE submissions.tournament_id = $1 AND duplicates.duplicate_animation_id IS NULL
	`, tournamentID)
	if err != nil {
		return nil, apperror.ExternalIOErr("querying submitted animations", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.ExternalIOErr("scanning submitted animation", err)
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ExternalIOErr("iterating submitted animations", err)
	}
	return ids, nil
}
