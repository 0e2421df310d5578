// Package advancer resolves a matchup that has just closed: it announces
// the winner, computes the next round's pairings when a round boundary is
// crossed, posts the next matchup's poll, or finishes the tournament.
package advancer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/bracket"
	"github.com/kartikbazzad/gifdome/internal/chatapi"
	"github.com/kartikbazzad/gifdome/internal/media"
)

// Deps bundles the collaborators the advancer needs beyond the database.
type Deps struct {
	Chat       chatapi.Client
	MediaCfg   media.Config
	PollOption [2]string
}

type matchupRow struct {
	Index      int32
	Round      int32
	AnimA      *string
	AnimB      *string
	VotesA     int32
	VotesB     int32
	Duration   int32
}

// AdvanceMatchup is called once a matchup has been observed to expire with
// non-tied votes meeting the minimum. It announces the winner and either
// starts the next matchup or finishes the tournament.
func AdvanceMatchup(ctx context.Context, tx pgx.Tx, deps Deps, chatID int64, tournamentID string, endedIndex int32) error {
	ended, next, err := loadEndedAndNext(ctx, tx, tournamentID, endedIndex)
	if err != nil {
		return err
	}
	if ended.VotesA == ended.VotesB {
		return apperror.IntegrityErr("ended matchup has tied votes", nil)
	}

	if next == nil {
		return FinishTournament(ctx, tx, deps, chatID, tournamentID, endedIndex)
	}

	switch {
	case next.Round == ended.Round:
		// Same round, no pairing work needed.
	case next.Round < ended.Round:
		totalRounds, err := totalRoundsOf(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if err := calculateNewRoundMatchups(ctx, tx, tournamentID, totalRounds, int(next.Round)); err != nil {
			return err
		}
	default:
		return apperror.IntegrityErr("next matchup round is greater than ended matchup round", nil)
	}

	if err := announceMatchupWinner(ctx, tx, deps, chatID, int(endedIndex), ended.AnimA, ended.AnimB, ended.VotesA, ended.VotesB); err != nil {
		return err
	}

	// Re-load the next matchup in case round-promotion just populated its animations.
	refreshed, err := loadMatchup(ctx, tx, tournamentID, next.Index)
	if err != nil {
		return err
	}

	pollID, messageID, err := sendPoll(ctx, tx, deps, chatID, tournamentID, refreshed)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE matchups
		SET poll_id = $1, message_id = $2, state = 'started'::matchup_state,
			animation_a_votes = 0, animation_b_votes = 0, started_at = now()
		WHERE tournament_id = $3 AND index = $4
	`, pollID, messageID, tournamentID, refreshed.Index)
	if err != nil {
		return apperror.ExternalIOErr("starting next matchup", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("starting next matchup affected unexpected row count", nil)
	}
	return nil
}

func loadEndedAndNext(ctx context.Context, tx pgx.Tx, tournamentID string, endedIndex int32) (*matchupRow, *matchupRow, error) {
	rows, err := tx.Query(ctx, `
		SELECT index, round, animation_a_id, animation_b_id, animation_a_votes, animation_b_votes, duration_secs
		FROM matchups
		WHERE tournament_id = $1 AND index IN ($2, $2 + 1)
		ORDER BY index
	`, tournamentID, endedIndex)
	if err != nil {
		return nil, nil, apperror.ExternalIOErr("querying ended/next matchups", err)
	}
	defer rows.Close()

	var found []matchupRow
	for rows.Next() {
		var m matchupRow
		if err := rows.Scan(&m.Index, &m.Round, &m.AnimA, &m.AnimB, &m.VotesA, &m.VotesB, &m.Duration); err != nil {
			return nil, nil, apperror.ExternalIOErr("scanning matchup row", err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperror.ExternalIOErr("iterating matchups", err)
	}

	var ended, next *matchupRow
	for i := range found {
		switch found[i].Index {
		case endedIndex:
			if ended != nil {
				return nil, nil, apperror.IntegrityErr("duplicate ended matchup index", nil)
			}
			m := found[i]
			ended = &m
		case endedIndex + 1:
			if next != nil {
				return nil, nil, apperror.IntegrityErr("duplicate next matchup index", nil)
			}
			m := found[i]
			next = &m
		default:
			return nil, nil, apperror.IntegrityErr("unexpected matchup index in result", nil)
		}
	}
	if ended == nil {
		return nil, nil, apperror.IntegrityErr("ended matchup not found", nil)
	}
	return ended, next, nil
}

func loadMatchup(ctx context.Context, tx pgx.Tx, tournamentID string, index int32) (*matchupRow, error) {
	var m matchupRow
	err := tx.QueryRow(ctx, `
		SELECT index, round, animation_a_id, animation_b_id, animation_a_votes, animation_b_votes, duration_secs
		FROM matchups WHERE tournament_id = $1 AND index = $2
	`, tournamentID, index).Scan(&m.Index, &m.Round, &m.AnimA, &m.AnimB, &m.VotesA, &m.VotesB, &m.Duration)
	if err != nil {
		return nil, apperror.ExternalIOErr("loading matchup", err)
	}
	return &m, nil
}

func totalRoundsOf(ctx context.Context, tx pgx.Tx, tournamentID string) (int, error) {
	var rounds *uint8
	err := tx.QueryRow(ctx, `SELECT rounds FROM tournaments WHERE id = $1`, tournamentID).Scan(&rounds)
	if err != nil {
		return 0, apperror.ExternalIOErr("loading tournament rounds", err)
	}
	if rounds == nil {
		return 0, apperror.IntegrityErr("tournament rounds is null during voting", nil)
	}
	return int(*rounds), nil
}

// calculateNewRoundMatchups fills in the animation ids for every matchup in
// roundNumber from its two feeder matchups' winners, per tournament.rs's
// calculate_new_round_matchups.
func calculateNewRoundMatchups(ctx context.Context, tx pgx.Tx, tournamentID string, totalRounds, roundNumber int) error {
	startIndex := bracket.RoundStartIndex(totalRounds, roundNumber)
	endIndex := startIndex + bracket.RoundMatchupCount(roundNumber)
	previousRoundStart := startIndex - (1 << uint(roundNumber))

	rows, err := tx.Query(ctx, `
		SELECT index, animation_a_id, animation_b_id, animation_a_votes, animation_b_votes
		FROM matchups
		WHERE tournament_id = $1 AND index >= $2 AND index < $3
	`, tournamentID, previousRoundStart, startIndex)
	if err != nil {
		return apperror.ExternalIOErr("querying feeder matchups", err)
	}
	feeders := make(map[int]matchupRow)
	for rows.Next() {
		var m matchupRow
		if err := rows.Scan(&m.Index, &m.AnimA, &m.AnimB, &m.VotesA, &m.VotesB); err != nil {
			rows.Close()
			return apperror.ExternalIOErr("scanning feeder matchup", err)
		}
		feeders[int(m.Index)] = m
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return apperror.ExternalIOErr("iterating feeder matchups", err)
	}
	rows.Close()

	x := 1 << uint(roundNumber)
	for index := startIndex; index < endIndex; index++ {
		f1, ok1 := feeders[index-x]
		f2, ok2 := feeders[index-x+1]
		if !ok1 || !ok2 {
			return apperror.IntegrityErr("missing feeder matchup for round promotion", nil)
		}
		winnerA, err := winnerOf(f1)
		if err != nil {
			return err
		}
		winnerB, err := winnerOf(f2)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE matchups SET animation_a_id = $1, animation_b_id = $2
			WHERE tournament_id = $3 AND index = $4
		`, winnerA, winnerB, tournamentID, index)
		if err != nil {
			return apperror.ExternalIOErr("updating new round matchup", err)
		}
		if tag.RowsAffected() != 1 {
			return apperror.IntegrityErr("new round matchup update affected unexpected row count", nil)
		}
		x--
	}
	return nil
}

func winnerOf(m matchupRow) (*string, error) {
	if m.VotesA == m.VotesB {
		return nil, apperror.IntegrityErr("feeder matchup has tied votes", nil)
	}
	if m.VotesA > m.VotesB {
		return m.AnimA, nil
	}
	return m.AnimB, nil
}

// announceMatchupWinner sends the winning animation by file identifier (no
// re-upload) with a caption naming the match and the winning option.
func announceMatchupWinner(ctx context.Context, tx pgx.Tx, deps Deps, chatID int64, matchupIndex int, animA, animB *string, votesA, votesB int32) error {
	if votesA == votesB {
		return apperror.IntegrityErr("announceMatchupWinner called with tied votes", nil)
	}
	var winnerID string
	var optionText string
	if votesA > votesB {
		if animA == nil {
			return apperror.IntegrityErr("winning animation A is null", nil)
		}
		winnerID, optionText = *animA, deps.PollOption[0]
	} else {
		if animB == nil {
			return apperror.IntegrityErr("winning animation B is null", nil)
		}
		winnerID, optionText = *animB, deps.PollOption[1]
	}

	fileIdentifier, err := fileIdentifierOf(ctx, tx, winnerID)
	if err != nil {
		return err
	}

	caption := fmt.Sprintf("GIF %s wins match #%d!", optionText, matchupIndex+1)
	if _, err := deps.Chat.SendAnimationByFileIdentifier(ctx, chatID, fileIdentifier, caption); err != nil {
		return apperror.ExternalIOErr("sending winner animation", err)
	}
	return nil
}

func fileIdentifierOf(ctx context.Context, tx pgx.Tx, animationID string) (string, error) {
	var fileIdentifier string
	err := tx.QueryRow(ctx, `SELECT file_identifier FROM animations WHERE id = $1`, animationID).Scan(&fileIdentifier)
	if err != nil {
		return "", apperror.ExternalIOErr("loading animation file identifier", err)
	}
	return fileIdentifier, nil
}

func roundString(round int32) string {
	switch round {
	case 1:
		return "This is the final round!"
	case 2:
		return "We're in the semifinals."
	case 3:
		return "We're in the quarterfinals."
	default:
		return fmt.Sprintf("We're in the round of %d.", 1<<uint(round))
	}
}

// sendPoll combines the matchup's two animations, uploads the clip, and
// sends a poll replying to it. The combined file is always removed after
// the send attempt, success or failure.
func sendPoll(ctx context.Context, tx pgx.Tx, deps Deps, chatID int64, tournamentID string, m *matchupRow) (string, int64, error) {
	if m.AnimA == nil || m.AnimB == nil {
		return "", 0, apperror.IntegrityErr("matchup missing animations when sending poll", nil)
	}

	combinedPath, err := media.CombineAnimations(deps.MediaCfg, *m.AnimA, *m.AnimB)
	if err != nil {
		return "", 0, apperror.ExternalIOErr("combining animations", err)
	}

	roundStr := roundString(m.Round)
	humanDuration := humanizeDuration(time.Duration(m.Duration) * time.Second)
	caption := fmt.Sprintf("Match #%d begins! %s\n\nThis poll stays open for at least %s.",
		m.Index+1, roundStr, humanDuration)

	sent, _, sendErr := deps.Chat.SendAnimationByPath(ctx, chatID, combinedPath, caption, nil)
	_ = removeFile(combinedPath)
	if sendErr != nil {
		return "", 0, apperror.ExternalIOErr("sending combined animation", sendErr)
	}

	pollID, messageID, err := deps.Chat.SendPoll(ctx, chatID, "Cast your votes!", []string{deps.PollOption[0], deps.PollOption[1]}, sent.MessageID)
	if err != nil {
		return "", 0, apperror.ExternalIOErr("sending poll", err)
	}

	if err := deps.Chat.PinChatMessage(ctx, chatID, messageID); err != nil {
		// Pinning is best-effort.
		_ = err
	}

	return pollID, messageID, nil
}

// SendFirstPoll sends the poll for a tournament's first matchup (index 0),
// for use as the command dispatcher's AnnounceFirstPoll hook after voting
// has just started and the bracket has just been created. It does not
// update the matchup row; the caller is responsible for recording the
// returned poll id and message id.
func SendFirstPoll(ctx context.Context, tx pgx.Tx, deps Deps, chatID int64, tournamentID string) (string, int64, error) {
	m, err := loadMatchup(ctx, tx, tournamentID, 0)
	if err != nil {
		return "", 0, err
	}
	return sendPoll(ctx, tx, deps, chatID, tournamentID, m)
}

// FinishTournament closes out the tournament using the final matchup's
// votes, announces the overall winner, and reverts the chat command menu.
func FinishTournament(ctx context.Context, tx pgx.Tx, deps Deps, chatID int64, tournamentID string, finalMatchupIndex int32) error {
	tag, err := tx.Exec(ctx, `UPDATE tournaments SET state = 'finished'::tournament_state WHERE id = $1`, tournamentID)
	if err != nil {
		return apperror.ExternalIOErr("finishing tournament", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("tournament finish affected unexpected row count", nil)
	}

	final, err := loadMatchup(ctx, tx, tournamentID, finalMatchupIndex)
	if err != nil {
		return err
	}
	if final.VotesA == final.VotesB {
		return apperror.IntegrityErr("final matchup has tied votes", nil)
	}

	var winnerID string
	if final.VotesA > final.VotesB {
		if final.AnimA == nil {
			return apperror.IntegrityErr("final winning animation A is null", nil)
		}
		winnerID = *final.AnimA
	} else {
		if final.AnimB == nil {
			return apperror.IntegrityErr("final winning animation B is null", nil)
		}
		winnerID = *final.AnimB
	}

	fileIdentifier, err := fileIdentifierOf(ctx, tx, winnerID)
	if err != nil {
		return err
	}

	sent, sendErr := deps.Chat.SendAnimationByFileIdentifier(ctx, chatID, fileIdentifier, "This is, officially, the best GIF. Thanks for voting!")
	if sendErr != nil {
		return apperror.ExternalIOErr("sending tournament winner", sendErr)
	}
	if err := deps.Chat.PinChatMessage(ctx, chatID, sent.MessageID); err != nil {
		_ = err // best-effort
	}
	if err := deps.Chat.DeleteMyCommands(ctx, chatapi.ScopeChatAdministrators(chatID)); err != nil {
		_ = err // best-effort
	}

	return nil
}
