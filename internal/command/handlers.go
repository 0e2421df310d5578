package command

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/botutil"
	"github.com/kartikbazzad/gifdome/internal/bracket"
	"github.com/kartikbazzad/gifdome/internal/chatapi"
	"github.com/kartikbazzad/gifdome/internal/chatmodel"
	"github.com/kartikbazzad/gifdome/internal/models"
	"github.com/kartikbazzad/gifdome/internal/token"
)

// Deps bundles the collaborators the dispatcher and its handlers need.
type Deps struct {
	Chat         chatapi.Client
	TournamentIDLength uint16
	MaxRounds    uint8
	RoundLengths []int
	AnnounceFirstPoll func(ctx context.Context, tx pgx.Tx, chatID int64, tournamentID string) (pollID string, messageID int64, err error)
}

func isInGroup(msg *chatmodel.Message) bool {
	return msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"
}

func replyNotFromGroupAdmin(ctx context.Context, chat chatapi.Client, msg *chatmodel.Message) {
	text := "Only group admins can use that command " + botutil.Wink
	_, _ = chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
}

func isFromGroupAdmin(ctx context.Context, chat chatapi.Client, msg *chatmodel.Message) (bool, error) {
	if msg.From == nil {
		return false, apperror.UnexpectedErr("message has no sender", nil)
	}
	member, err := chat.GetChatMember(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		return false, apperror.ExternalIOErr("getting chat member", err)
	}
	return member.Status == chatapi.MemberCreator || member.Status == chatapi.MemberAdministrator, nil
}

// Handle dispatches a parsed command to its handler. Any handler error is
// logged by the caller and triggers a best-effort apology reply.
func Handle(ctx context.Context, pool *pgxpool.Pool, deps Deps, name Name, msg *chatmodel.Message) error {
	switch name {
	case Abort:
		return handleAbort(ctx, pool, deps, msg)
	case Help:
		return handleHelp(ctx, pool, deps, msg)
	case Start:
		return handleStart(ctx, pool, deps, msg)
	case StartVoting:
		return handleStartVoting(ctx, pool, deps, msg)
	default:
		return apperror.UnexpectedErr(fmt.Sprintf("unknown command %q", name), nil)
	}
}

func activeTournamentState(ctx context.Context, tx pgx.Tx, chatID int64) (*models.Tournament, error) {
	var t models.Tournament
	err := tx.QueryRow(ctx, `
		SELECT id, state::text, rounds, min_votes
		FROM tournaments
		WHERE chat_id = $1 AND state IN ('submitting', 'voting')
	`, chatID).Scan(&t.ID, &t.State, &t.Rounds, &t.MinVotes)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ExternalIOErr("querying active tournament", err)
	}
	t.ChatID = chatID
	return &t, nil
}

func handleAbort(ctx context.Context, pool *pgxpool.Pool, deps Deps, msg *chatmodel.Message) error {
	if !isInGroup(msg) {
		return nil
	}
	isAdmin, err := isFromGroupAdmin(ctx, deps.Chat, msg)
	if err != nil {
		return err
	}
	if !isAdmin {
		replyNotFromGroupAdmin(ctx, deps.Chat, msg)
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperror.ExternalIOErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	t, err := activeTournamentState(ctx, tx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if t == nil {
		text := "There is no tournament running " + botutil.Confused
		_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
		return nil
	}

	tag, err := tx.Exec(ctx, `UPDATE tournaments SET state = 'aborted'::tournament_state WHERE id = $1`, t.ID)
	if err != nil {
		return apperror.ExternalIOErr("aborting tournament", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("tournament abort affected unexpected row count", nil)
	}

	tag, err = tx.Exec(ctx, `UPDATE matchups SET state = 'aborted'::matchup_state WHERE tournament_id = $1 AND state = 'started'::matchup_state`, t.ID)
	if err != nil {
		return apperror.ExternalIOErr("aborting started matchup", err)
	}
	if tag.RowsAffected() > 1 {
		return apperror.IntegrityErr("more than one started matchup aborted", nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.ExternalIOErr("committing abort", err)
	}

	text := "I have stopped the tournament " + botutil.Sad
	_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
	_ = botutil.UpdateChatCommands(ctx, deps.Chat, msg.Chat.ID, nil)
	return nil
}

func handleHelp(ctx context.Context, pool *pgxpool.Pool, deps Deps, msg *chatmodel.Message) error {
	var lines []string
	lines = append(lines, "The GIFdome aims to find the ultimate GIF by process of elimination.", "")

	if !isInGroup(msg) {
		lines = append(lines, "Invite me to a group to start a tournament "+botutil.Wink)
		_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, strings.Join(lines, "\n"), &msg.MessageID)
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperror.ExternalIOErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	t, err := activeTournamentState(ctx, tx, msg.Chat.ID)
	if err != nil {
		return err
	}
	isAdmin, err := isFromGroupAdmin(ctx, deps.Chat, msg)
	if err != nil {
		return err
	}

	switch {
	case t != nil && t.State == models.TournamentSubmitting:
		if isAdmin {
			lines = append(lines,
				"Available commands:",
				"• /startvoting - close submissions and start the voting phase. After the command, specify:",
				"  • minimumvotes=<number between 1 and 255>",
				fmt.Sprintf("  • rounds=<number between 1 and %d>", deps.MaxRounds),
				"• /abort - abort the current tournament",
			)
		}
	case t != nil && t.State == models.TournamentVoting:
		if isAdmin {
			lines = append(lines, "Available commands:", "• /abort - abort the current tournament")
		}
	default:
		if isAdmin {
			lines = append(lines, "Available commands:", "• /start - start the tournament")
		}
	}

	_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, strings.Join(lines, "\n"), &msg.MessageID)
	return nil
}

func handleStart(ctx context.Context, pool *pgxpool.Pool, deps Deps, msg *chatmodel.Message) error {
	if !isInGroup(msg) {
		text := "Invite me to a group to start a tournament " + botutil.Wink
		_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
		return nil
	}
	isAdmin, err := isFromGroupAdmin(ctx, deps.Chat, msg)
	if err != nil {
		return err
	}
	if !isAdmin {
		replyNotFromGroupAdmin(ctx, deps.Chat, msg)
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperror.ExternalIOErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	existing, err := activeTournamentState(ctx, tx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		text := "There is already a tournament running " + botutil.Confused
		_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
		return nil
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO chats (id, type, title, username) VALUES ($1, $2::chat_type, $3, $4)
		ON CONFLICT (id) DO UPDATE SET type = $2::chat_type, title = $3, username = $4
	`, msg.Chat.ID, msg.Chat.Type, msg.Chat.Title, msg.Chat.Username)
	if err != nil {
		return apperror.ExternalIOErr("upserting chat", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("chat upsert affected unexpected row count", nil)
	}

	tournamentID, err := token.Generate(deps.TournamentIDLength)
	if err != nil {
		return apperror.UnexpectedErr("generating tournament id", err)
	}

	tag, err = tx.Exec(ctx, `
		INSERT INTO tournaments (id, chat_id, state, created_at)
		VALUES ($1, $2, 'submitting'::tournament_state, now())
	`, tournamentID, msg.Chat.ID)
	if err != nil {
		return apperror.ExternalIOErr("inserting tournament", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("tournament insert affected unexpected row count", nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.ExternalIOErr("committing start", err)
	}

	submitting := models.TournamentSubmitting
	if err := botutil.UpdateChatCommands(ctx, deps.Chat, msg.Chat.ID, &submitting); err != nil {
		return apperror.ExternalIOErr("updating chat commands", err)
	}

	text := "The GIFdome has started! Send me your best GIFs! " + botutil.Excited +
		"\n\nTo submit a GIF, just send one to the group. You can cast your vote on an already submitted GIF by sending it again; forwarding a GIF sent by someone else also works."
	sent, err := deps.Chat.SendMessage(ctx, msg.Chat.ID, text, nil)
	if err == nil && sent != nil {
		_ = deps.Chat.PinChatMessage(ctx, msg.Chat.ID, sent.MessageID)
	}
	return nil
}

func roundsStr(rounds uint8) string {
	if rounds == 1 {
		return "a single round"
	}
	return fmt.Sprintf("%d rounds", rounds)
}

func handleStartVoting(ctx context.Context, pool *pgxpool.Pool, deps Deps, msg *chatmodel.Message) error {
	if !isInGroup(msg) {
		return nil
	}
	isAdmin, err := isFromGroupAdmin(ctx, deps.Chat, msg)
	if err != nil {
		return err
	}
	if !isAdmin {
		replyNotFromGroupAdmin(ctx, deps.Chat, msg)
		return nil
	}

	params, ok := ParseStartVotingParams(msg.TextOrCaption(), deps.MaxRounds)
	if !ok {
		text := "Invalid parameters; see /help for command usage."
		_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperror.ExternalIOErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	t, err := activeTournamentState(ctx, tx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if t == nil || t.State != models.TournamentSubmitting {
		text := "The tournament must be in submission phase to start voting."
		_, _ = deps.Chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
		return nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE tournaments SET state = 'voting'::tournament_state, rounds = $1, min_votes = $2 WHERE id = $3
	`, params.Rounds, params.MinVotes, t.ID)
	if err != nil {
		return apperror.ExternalIOErr("updating tournament to voting", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("tournament voting update affected unexpected row count", nil)
	}

	rng := rand.New(rand.NewSource(int64(params.Rounds)<<32 | int64(params.MinVotes) | msg.Chat.ID))
	err = bracket.Create(ctx, tx, t.ID, int(params.Rounds), deps.RoundLengths[:params.Rounds], rng)
	if err != nil {
		var nerr *bracket.NotEnoughSubmissionsError
		if errors.As(err, &nerr) {
			replyNotEnoughSubmissions(ctx, deps.Chat, msg, nerr.Actual, nerr.Needed, params.Rounds)
			return nil
		}
		return err
	}

	var pollID string
	var messageID int64
	if deps.AnnounceFirstPoll != nil {
		pollID, messageID, err = deps.AnnounceFirstPoll(ctx, tx, msg.Chat.ID, t.ID)
		if err != nil {
			return err
		}
	}

	tag, err = tx.Exec(ctx, `
		UPDATE matchups SET poll_id = $1, message_id = $2, state = 'started'::matchup_state,
			animation_a_votes = 0, animation_b_votes = 0, started_at = now()
		WHERE tournament_id = $3 AND index = 0
	`, pollID, messageID, t.ID)
	if err != nil {
		return apperror.ExternalIOErr("starting first matchup", err)
	}
	if tag.RowsAffected() != 1 {
		return apperror.IntegrityErr("first matchup start affected unexpected row count", nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.ExternalIOErr("committing start-voting", err)
	}

	voting := models.TournamentVoting
	_ = botutil.UpdateChatCommands(ctx, deps.Chat, msg.Chat.ID, &voting)
	return nil
}

func replyNotEnoughSubmissions(ctx context.Context, chat chatapi.Client, msg *chatmodel.Message, count, needed int, rounds uint8) {
	rs := roundsStr(rounds)
	var text string
	switch count {
	case 0:
		text = fmt.Sprintf("There are no submissions. At least %d are needed for %s. %s", needed, rs, botutil.Confused)
	case 1:
		text = fmt.Sprintf("There is only one submission. At least %d are needed for %s. %s", needed, rs, botutil.Confused)
	default:
		text = fmt.Sprintf("There are only %d submissions. At least %d are needed for %s. %s", count, needed, rs, botutil.Confused)
	}
	_, _ = chat.SendMessage(ctx, msg.Chat.ID, text, &msg.MessageID)
}
