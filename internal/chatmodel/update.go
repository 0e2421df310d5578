// Package chatmodel decodes the subset of the chat platform's inbound
// webhook update payload this engine needs: messages (with optional
// animation attachments and command entities) and poll updates.
package chatmodel

// Update is one inbound webhook payload.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
	Poll     *Poll    `json:"poll"`
}

// Chat is the chat a message was sent in.
type Chat struct {
	ID       int64   `json:"id"`
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	Username *string `json:"username"`
}

// User is the sender of a message.
type User struct {
	ID       int64   `json:"id"`
	Username *string `json:"username"`
}

// MessageEntity marks a substring of a message's text/caption, e.g. a bot command.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Animation is an inline animation attachment. FileUniqueID is the
// platform's stable content hash, constant across re-uploads and resends;
// FileID is an opaque, platform-scoped handle used only to fetch or resend
// the file and is not guaranteed to stay the same across resends.
type Animation struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	MimeType     string `json:"mime_type"`
}

// Message is an inbound chat message, possibly carrying a command or an animation.
type Message struct {
	MessageID       int64           `json:"message_id"`
	Chat            Chat            `json:"chat"`
	From            *User           `json:"from"`
	Text            *string         `json:"text"`
	Caption         *string         `json:"caption"`
	Entities        []MessageEntity `json:"entities"`
	CaptionEntities []MessageEntity `json:"caption_entities"`
	Animation       *Animation      `json:"animation"`
}

// TextOrCaption returns the message's text if present, else its caption.
func (m *Message) TextOrCaption() string {
	if m.Text != nil {
		return *m.Text
	}
	if m.Caption != nil {
		return *m.Caption
	}
	return ""
}

// PollOption is one option of a poll, with its current vote count.
type PollOption struct {
	Text       string `json:"text"`
	VoterCount int32  `json:"voter_count"`
}

// Poll is an inbound poll-update payload.
type Poll struct {
	ID       string       `json:"id"`
	Options  []PollOption `json:"options"`
	IsClosed bool         `json:"is_closed"`
}
