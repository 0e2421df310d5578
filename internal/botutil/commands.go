package botutil

import (
	"context"
	"log/slog"

	"github.com/kartikbazzad/gifdome/internal/chatapi"
	"github.com/kartikbazzad/gifdome/internal/models"
)

// UpdateChatCommands sets the admin command menu for chatID to match the
// tournament state: submitting -> startvoting/abort/help; voting ->
// abort/help; anything else (including no tournament) clears the menu.
func UpdateChatCommands(ctx context.Context, chat chatapi.Client, chatID int64, state *models.TournamentState) error {
	scope := chatapi.ScopeChatAdministrators(chatID)

	if state == nil {
		return chat.DeleteMyCommands(ctx, scope)
	}

	switch *state {
	case models.TournamentSubmitting:
		return chat.SetMyCommands(ctx, []chatapi.BotCommand{
			{Command: "startvoting", Description: "close submissions and start the voting phase"},
			{Command: "abort", Description: "abort the current tournament"},
			{Command: "help", Description: "show help"},
		}, scope)
	case models.TournamentVoting:
		return chat.SetMyCommands(ctx, []chatapi.BotCommand{
			{Command: "abort", Description: "abort the current tournament"},
			{Command: "help", Description: "show help"},
		}, scope)
	default:
		return chat.DeleteMyCommands(ctx, scope)
	}
}

// UnexpectedErrorReply sends a best-effort apology reply; a failure to send
// is logged, not propagated.
func UnexpectedErrorReply(ctx context.Context, chat chatapi.Client, chatID int64, replyToMessageID int64) {
	text := "I ran into an unexpected error " + Frustrated
	if _, err := chat.SendMessage(ctx, chatID, text, &replyToMessageID); err != nil {
		slog.Default().ErrorContext(ctx, "failed to send unexpected error reply", "error", err)
	}
}
