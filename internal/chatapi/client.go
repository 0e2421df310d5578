// Package chatapi defines the chat platform client used by every
// outward-facing operation: sending messages/animations/polls, pinning,
// stopping polls, managing the per-chat command menu, resolving admin
// status, and fetching/uploading files.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ChatMemberStatus mirrors the chat platform's member-status enumeration.
type ChatMemberStatus string

const (
	MemberCreator       ChatMemberStatus = "creator"
	MemberAdministrator ChatMemberStatus = "administrator"
	MemberMember        ChatMemberStatus = "member"
	MemberLeft          ChatMemberStatus = "left"
	MemberKicked        ChatMemberStatus = "kicked"
)

// BotCommand is one entry in a command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// CommandScope selects which chats a SetMyCommands call applies to.
type CommandScope struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id,omitempty"`
}

var (
	ScopeDefault            = CommandScope{Type: "default"}
	ScopeAllChatAdmins      = CommandScope{Type: "all_chat_administrators"}
	ScopeChatAdministrators = func(chatID int64) CommandScope {
		return CommandScope{Type: "chat_administrators", ChatID: chatID}
	}
	ScopeChat = func(chatID int64) CommandScope {
		return CommandScope{Type: "chat", ChatID: chatID}
	}
)

// SentMessage is the subset of a send response this engine cares about.
type SentMessage struct {
	MessageID int64  `json:"message_id"`
	PollID    string `json:"-"`
}

// File describes a chat-platform file handle resolution.
type File struct {
	FilePath *string `json:"file_path"`
	FileSize *uint64 `json:"file_size"`
}

// ChatMember is the subset of a get_chat_member response this engine cares about.
type ChatMember struct {
	Status ChatMemberStatus `json:"status"`
}

// Client is the full set of chat-platform operations this engine uses.
type Client interface {
	GetMe(ctx context.Context) (username string, err error)
	SendMessage(ctx context.Context, chatID int64, text string, replyToMessageID *int64) (*SentMessage, error)
	SendAnimationByPath(ctx context.Context, chatID int64, path string, caption string, replyToMessageID *int64) (*SentMessage, string, error)
	SendAnimationByFileIdentifier(ctx context.Context, chatID int64, fileIdentifier string, caption string) (*SentMessage, error)
	SendPoll(ctx context.Context, chatID int64, question string, options []string, replyToMessageID int64) (pollID string, messageID int64, err error)
	StopPoll(ctx context.Context, chatID int64, messageID int64) error
	PinChatMessage(ctx context.Context, chatID int64, messageID int64) error
	SetMyCommands(ctx context.Context, commands []BotCommand, scope CommandScope) error
	DeleteMyCommands(ctx context.Context, scope CommandScope) error
	GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error)
	GetFile(ctx context.Context, fileIdentifier string) (*File, error)
	SetWebhook(ctx context.Context, url, secret string) error
}

type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// HTTPClient is the production Client implementation, talking to the chat
// platform's Bot API over HTTPS.
type HTTPClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewHTTPClient builds a client against the standard Bot API base URL.
func NewHTTPClient(token string) *HTTPClient {
	return &HTTPClient{
		BaseURL: "https://api.telegram.org",
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.Token, method)
}

// FileDownloadURL builds the URL to download a resolved file path.
func (c *HTTPClient) FileDownloadURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.BaseURL, c.Token, filePath)
}

func (c *HTTPClient) doJSON(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp.Body, method, out)
}

func decodeEnvelope(r io.Reader, method string, out any) error {
	var env response
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("%s failed: %s", method, env.Description)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func (c *HTTPClient) GetMe(ctx context.Context) (string, error) {
	var result struct {
		Username string `json:"username"`
	}
	if err := c.doJSON(ctx, "getMe", map[string]any{}, &result); err != nil {
		return "", err
	}
	return result.Username, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, chatID int64, text string, replyToMessageID *int64) (*SentMessage, error) {
	payload := map[string]any{"chat_id": chatID, "text": text}
	if replyToMessageID != nil {
		payload["reply_to_message_id"] = *replyToMessageID
	}
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.doJSON(ctx, "sendMessage", payload, &result); err != nil {
		return nil, err
	}
	return &SentMessage{MessageID: result.MessageID}, nil
}

// SendAnimationByPath uploads a local file as the animation body via
// multipart/form-data, used for combined matchup clips.
func (c *HTTPClient) SendAnimationByPath(ctx context.Context, chatID int64, path string, caption string, replyToMessageID *int64) (*SentMessage, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", fmt.Sprintf("%d", chatID))
	_ = w.WriteField("caption", caption)
	if replyToMessageID != nil {
		_ = w.WriteField("reply_to_message_id", fmt.Sprintf("%d", *replyToMessageID))
	}
	fw, err := w.CreateFormFile("animation", path)
	if err != nil {
		return nil, "", err
	}
	f, err := openFile(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendAnimation"), &buf)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("calling sendAnimation: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		MessageID int64 `json:"message_id"`
		Animation struct {
			FileID string `json:"file_id"`
		} `json:"animation"`
	}
	if err := decodeEnvelope(resp.Body, "sendAnimation", &result); err != nil {
		return nil, "", err
	}
	return &SentMessage{MessageID: result.MessageID}, result.Animation.FileID, nil
}

func (c *HTTPClient) SendAnimationByFileIdentifier(ctx context.Context, chatID int64, fileIdentifier string, caption string) (*SentMessage, error) {
	payload := map[string]any{"chat_id": chatID, "animation": fileIdentifier, "caption": caption}
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.doJSON(ctx, "sendAnimation", payload, &result); err != nil {
		return nil, err
	}
	return &SentMessage{MessageID: result.MessageID}, nil
}

func (c *HTTPClient) SendPoll(ctx context.Context, chatID int64, question string, options []string, replyToMessageID int64) (string, int64, error) {
	payload := map[string]any{
		"chat_id":             chatID,
		"question":            question,
		"options":             options,
		"is_anonymous":        false,
		"reply_to_message_id": replyToMessageID,
	}
	var result struct {
		MessageID int64 `json:"message_id"`
		Poll      *struct {
			ID string `json:"id"`
		} `json:"poll"`
	}
	if err := c.doJSON(ctx, "sendPoll", payload, &result); err != nil {
		return "", 0, err
	}
	if result.Poll == nil {
		return "", 0, fmt.Errorf("sendPoll response missing poll object")
	}
	return result.Poll.ID, result.MessageID, nil
}

func (c *HTTPClient) StopPoll(ctx context.Context, chatID int64, messageID int64) error {
	return c.doJSON(ctx, "stopPoll", map[string]any{"chat_id": chatID, "message_id": messageID}, nil)
}

func (c *HTTPClient) PinChatMessage(ctx context.Context, chatID int64, messageID int64) error {
	return c.doJSON(ctx, "pinChatMessage", map[string]any{"chat_id": chatID, "message_id": messageID}, nil)
}

func (c *HTTPClient) SetMyCommands(ctx context.Context, commands []BotCommand, scope CommandScope) error {
	return c.doJSON(ctx, "setMyCommands", map[string]any{"commands": commands, "scope": scope}, nil)
}

func (c *HTTPClient) DeleteMyCommands(ctx context.Context, scope CommandScope) error {
	return c.doJSON(ctx, "deleteMyCommands", map[string]any{"scope": scope}, nil)
}

func (c *HTTPClient) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	var result ChatMember
	if err := c.doJSON(ctx, "getChatMember", map[string]any{"chat_id": chatID, "user_id": userID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetFile(ctx context.Context, fileIdentifier string) (*File, error) {
	var result File
	if err := c.doJSON(ctx, "getFile", map[string]any{"file_id": fileIdentifier}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{
		"url":             url,
		"secret_token":    secret,
		"allowed_updates": []string{"message", "poll"},
	}
	return c.doJSON(ctx, "setWebhook", payload, nil)
}
