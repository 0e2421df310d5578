// Package models holds the plain data records backing the tournament
// engine's relational schema: Chat, User, Animation, AnimationFilename,
// SuggestedDuplicate, Duplicate, Tournament, Submission, Matchup.
package models

import "time"

// ChatType distinguishes the two chat kinds a tournament can run in.
type ChatType string

const (
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
)

// TournamentState is the tournament lifecycle state.
type TournamentState string

const (
	TournamentSubmitting TournamentState = "submitting"
	TournamentVoting     TournamentState = "voting"
	TournamentFinished   TournamentState = "finished"
	TournamentAborted    TournamentState = "aborted"
)

// MatchupState is the matchup lifecycle state.
type MatchupState string

const (
	MatchupNotStarted MatchupState = "not_started"
	MatchupStarted    MatchupState = "started"
	MatchupFinished   MatchupState = "finished"
	MatchupAborted    MatchupState = "aborted"
)

// Chat is a group or supergroup the bot has been invited to.
type Chat struct {
	ID       int64
	Type     ChatType
	Title    string
	Username *string
}

// User is a chat-platform user who has submitted or voted.
type User struct {
	ID       int64
	Username *string
}

// Animation is an immutable record of a saved, probed animation file.
type Animation struct {
	ID              string
	FileIdentifier  string
	Width           int32
	Height          int32
	MimeType        string
	Frames          int32
	FPSNum          int32
	FPSDenom        int32
}

// Duration returns the animation's playback length in seconds.
func (a *Animation) Duration() float64 {
	return float64(a.Frames) * float64(a.FPSDenom) / float64(a.FPSNum)
}

// AnimationFilename records a filename observed for an animation.
type AnimationFilename struct {
	AnimationID string
	Filename    string
}

// SuggestedDuplicate is an unconfirmed candidate pairing produced by the
// perceptual-fingerprint clustering tool.
type SuggestedDuplicate struct {
	PrimaryAnimationID   string
	DuplicateAnimationID string
}

// Duplicate is an operator-confirmed primary/duplicate mapping.
type Duplicate struct {
	DuplicateAnimationID string
	PrimaryAnimationID   string
}

// Tournament is one bracket run for a chat.
type Tournament struct {
	ID        string
	ChatID    int64
	State     TournamentState
	Rounds    *uint8
	MinVotes  *uint8
	CreatedAt time.Time
}

// Submission records that a user submitted/voted for an animation in a
// tournament.
type Submission struct {
	TournamentID string
	AnimationID  string
	SubmitterID  int64
	CreatedAt    time.Time
}

// Matchup is one poll within a tournament's bracket.
type Matchup struct {
	TournamentID    string
	Index           int32
	Round           int32
	AnimationAID    *string
	AnimationBID    *string
	State           MatchupState
	PollID          *string
	MessageID       *int64
	AnimationAVotes int32
	AnimationBVotes int32
	DurationSecs    int32
	StartedAt       *time.Time
	FinishedAt      *time.Time
}
