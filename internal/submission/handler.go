// Package submission implements the ingestion pipeline for animations sent
// to a chat with a tournament in its submitting phase: validation, saving,
// probing, deduplication-aware bookkeeping, and the four templated replies.
package submission

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/botutil"
	"github.com/kartikbazzad/gifdome/internal/chatapi"
	"github.com/kartikbazzad/gifdome/internal/chatmodel"
	"github.com/kartikbazzad/gifdome/internal/config"
	"github.com/kartikbazzad/gifdome/internal/media"
)

// Deps bundles the collaborators the submission handler needs.
type Deps struct {
	Chat      chatapi.Client
	MediaCfg  media.Config
	Fetcher   media.FileFetcher
	Animation config.Animation
}

// Handle validates and persists an animation attached to msg, replying to
// the user with an acknowledgement. Without a submitting tournament in the
// chat it returns nil silently. Other non-error preconditions (invalid mime
// type, oversized file, overlong duration) are resolved with a reply and a
// nil return, not propagated as errors.
func Handle(ctx context.Context, pool *pgxpool.Pool, deps Deps, msg *chatmodel.Message) error {
	anim := msg.Animation
	if anim == nil {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperror.ExternalIOErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	tournamentID, ok, err := submittingTournament(ctx, tx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if !deps.Animation.IsAllowedMimeType(anim.MimeType) {
		text := "That file type is not accepted " + botutil.Confused
		_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
		return nil
	}

	if msg.From == nil {
		return apperror.UnexpectedErr("submission message has no sender", nil)
	}

	animationExists, err := animationExists(ctx, tx, anim.FileUniqueID)
	if err != nil {
		return err
	}

	animationID := anim.FileUniqueID

	if !animationExists {
		if err := media.SaveAnimation(ctx, deps.MediaCfg, deps.Fetcher, animationID, anim.FileID); err != nil {
			if tooLarge, ok := err.(*media.TooLargeError); ok {
				_ = tooLarge
				text := "The file size is too big " + botutil.Shocked
				_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
				return nil
			}
			return apperror.ExternalIOErr("saving animation", err)
		}

		if err := media.GenerateThumbnail(deps.MediaCfg, animationID, nil); err != nil {
			return apperror.ExternalIOErr("generating thumbnail", err)
		}

		params, err := media.GetAnimationParams(filepath.Join(deps.MediaCfg.SaveDir, animationID))
		if err != nil {
			return apperror.ExternalIOErr("probing animation", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO animations (id, file_identifier, width, height, mime_type, frames, fps_num, fps_denom)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, animationID, anim.FileID, params.Width, params.Height, anim.MimeType, params.Frames, params.FPSNum, params.FPSDenom)
		if err != nil {
			return apperror.ExternalIOErr("inserting animation", err)
		}
		if tag.RowsAffected() != 1 {
			return apperror.IntegrityErr("animation insert affected unexpected row count", nil)
		}

		if params.Duration() > float64(deps.Animation.MaxDurationSecs) {
			if err := tx.Commit(ctx); err != nil {
				return apperror.ExternalIOErr("committing animation", err)
			}
			text := fmt.Sprintf("GIFs longer than %d seconds are not accepted.", deps.Animation.MaxDurationSecs)
			_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
			return nil
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO animation_filenames (animation_id, filename) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, animationID, anim.FileID); err != nil {
		return apperror.ExternalIOErr("upserting animation filename", err)
	}

	var username *string
	if msg.From.Username != nil {
		username = msg.From.Username
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = $2
	`, msg.From.ID, username); err != nil {
		return apperror.ExternalIOErr("upserting user", err)
	}

	isPrimary, isDuplicate, err := classifyAnimation(ctx, tx, animationID)
	if err != nil {
		return err
	}
	if isPrimary && isDuplicate {
		return apperror.IntegrityErr("animation is both primary and duplicate", nil)
	}

	similar, err := similarAnimations(ctx, tx, animationID, isPrimary, isDuplicate)
	if err != nil {
		return err
	}

	alreadySubmitted, err := exactSubmissionExists(ctx, tx, tournamentID, animationID, msg.From.ID)
	if err != nil {
		return err
	}
	alreadySubmittedSimilar := false
	if !alreadySubmitted {
		alreadySubmittedSimilar, err = similarSubmissionExists(ctx, tx, tournamentID, similar, msg.From.ID)
		if err != nil {
			return err
		}
	}

	if !alreadySubmitted {
		tag, err := tx.Exec(ctx, `
			INSERT INTO submissions (tournament_id, animation_id, submitter_id, created_at)
			VALUES ($1, $2, $3, now())
		`, tournamentID, animationID, msg.From.ID)
		if err != nil {
			return apperror.ExternalIOErr("inserting submission", err)
		}
		if tag.RowsAffected() != 1 {
			return apperror.IntegrityErr("submission insert affected unexpected row count", nil)
		}
	}

	count, err := distinctSubmitterCount(ctx, tx, tournamentID, animationID, similar)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.ExternalIOErr("committing submission", err)
	}

	replyWithCount(ctx, deps.Chat, msg, alreadySubmitted, alreadySubmittedSimilar, count)
	return nil
}

func submittingTournament(ctx context.Context, tx pgx.Tx, chatID int64) (string, bool, error) {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id FROM tournaments WHERE chat_id = $1 AND state = 'submitting'::tournament_state
	`, chatID).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperror.ExternalIOErr("querying submitting tournament", err)
	}
	return id, true, nil
}

func animationExists(ctx context.Context, tx pgx.Tx, animationID string) (bool, error) {
	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM animations WHERE id = $1`, animationID).Scan(&count); err != nil {
		return false, apperror.ExternalIOErr("counting animation", err)
	}
	if count != 0 && count != 1 {
		return false, apperror.IntegrityErr("animation id count is neither 0 nor 1", nil)
	}
	return count == 1, nil
}

// classifyAnimation reports whether animationID is a confirmed primary
// (appears as primary_animation_id in duplicates) or a confirmed duplicate
// (appears as duplicate_animation_id).
func classifyAnimation(ctx context.Context, tx pgx.Tx, animationID string) (isPrimary, isDuplicate bool, err error) {
	err = tx.QueryRow(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM duplicates WHERE primary_animation_id = $1),
			EXISTS(SELECT 1 FROM duplicates WHERE duplicate_animation_id = $1)
	`, animationID).Scan(&isPrimary, &isDuplicate)
	if err != nil {
		return false, false, apperror.ExternalIOErr("classifying animation", err)
	}
	return isPrimary, isDuplicate, nil
}

// similarAnimations returns the set of animation ids in the same confirmed
// duplicate cluster as animationID (excluding animationID itself).
func similarAnimations(ctx context.Context, tx pgx.Tx, animationID string, isPrimary, isDuplicate bool) ([]string, error) {
	var rows pgx.Rows
	var err error
	switch {
	case isPrimary:
		rows, err = tx.Query(ctx, `SELECT duplicate_animation_id FROM duplicates WHERE primary_animation_id = $1`, animationID)
	case isDuplicate:
		rows, err = tx.Query(ctx, `
			SELECT primary_animation_id FROM duplicates WHERE duplicate_animation_id = $1
			UNION
			SELECT duplicate_animation_id FROM duplicates
			WHERE primary_animation_id = (SELECT primary_animation_id FROM duplicates WHERE duplicate_animation_id = $1)
			AND duplicate_animation_id != $1
		`, animationID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ExternalIOErr("querying similar animations", err)
	}
	defer rows.Close()

	var similar []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.ExternalIOErr("scanning similar animation", err)
		}
		similar = append(similar, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ExternalIOErr("iterating similar animations", err)
	}
	return similar, nil
}

func exactSubmissionExists(ctx context.Context, tx pgx.Tx, tournamentID, animationID string, submitterID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM submissions WHERE tournament_id = $1 AND animation_id = $2 AND submitter_id = $3)
	`, tournamentID, animationID, submitterID).Scan(&exists)
	if err != nil {
		return false, apperror.ExternalIOErr("checking exact submission", err)
	}
	return exists, nil
}

func similarSubmissionExists(ctx context.Context, tx pgx.Tx, tournamentID string, similar []string, submitterID int64) (bool, error) {
	if len(similar) == 0 {
		return false, nil
	}
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM submissions WHERE tournament_id = $1 AND animation_id = ANY($2) AND submitter_id = $3)
	`, tournamentID, similar, submitterID).Scan(&exists)
	if err != nil {
		return false, apperror.ExternalIOErr("checking similar submission", err)
	}
	return exists, nil
}

func distinctSubmitterCount(ctx context.Context, tx pgx.Tx, tournamentID, animationID string, similar []string) (int, error) {
	ids := append([]string{animationID}, similar...)
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(DISTINCT submitter_id) FROM submissions WHERE tournament_id = $1 AND animation_id = ANY($2)
	`, tournamentID, ids).Scan(&count)
	if err != nil {
		return 0, apperror.ExternalIOErr("counting distinct submitters", err)
	}
	return count, nil
}

func timesPhrase(n int) string {
	switch n {
	case 1:
		return "once"
	case 2:
		return "twice"
	default:
		return fmt.Sprintf("%d times", n)
	}
}

func replyWithCount(ctx context.Context, chat chatapi.Client, msg *chatmodel.Message, alreadySubmitted, alreadySubmittedSimilar bool, count int) {
	var text string
	switch {
	case alreadySubmitted:
		text = fmt.Sprintf("You've already sent this GIF; it has been sent %s.", timesPhrase(count))
	case alreadySubmittedSimilar:
		text = fmt.Sprintf("You've already sent a similar GIF; it has been sent %s.", timesPhrase(count))
	case count == 1:
		text = "Thanks for your submission! This is the first time it's been sent."
	default:
		text = fmt.Sprintf("Thanks for your submission! This GIF has now been sent %s.", timesPhrase(count))
	}
	_, _ = chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
}
