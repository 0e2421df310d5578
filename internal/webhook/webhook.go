// Package webhook exposes the gin HTTP handler that receives chat-platform
// webhook updates and routes them to the command dispatcher, the submission
// handler, or the poll fan-in channel.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/kartikbazzad/gifdome/internal/botutil"
	"github.com/kartikbazzad/gifdome/internal/chatapi"
	"github.com/kartikbazzad/gifdome/internal/chatmodel"
	"github.com/kartikbazzad/gifdome/internal/command"
	"github.com/kartikbazzad/gifdome/internal/dbguard"
	"github.com/kartikbazzad/gifdome/internal/pollfanin"
	"github.com/kartikbazzad/gifdome/internal/submission"
)

// Deps bundles everything the webhook handler needs to route an update.
type Deps struct {
	Pool        *pgxpool.Pool
	Guard       *dbguard.Guard
	Chat        chatapi.Client
	CommandDeps command.Deps
	Submission  submission.Deps
	PollOut     chan<- pollfanin.Update
	Secret      string
	BotUsername func() string // returns "" until resolved
}

// rateLimiter hands out a per-IP token bucket limiter, mirroring a
// generic per-IP limiter adapted for this publicly reachable endpoint.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newRateLimiter(requestsPerMinute, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    burst,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[ip] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// RateLimitMiddleware rejects requests exceeding requestsPerMinute per
// client IP with 429.
func RateLimitMiddleware(requestsPerMinute, burst int) gin.HandlerFunc {
	limiter := newRateLimiter(requestsPerMinute, burst)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.allow(ip) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Register mounts the webhook route on r.
func Register(r gin.IRouter, deps Deps) {
	r.POST("/webhook", handle(deps))
}

func handle(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(deps.Secret)) != 1 {
			c.Status(http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}

		var update chatmodel.Update
		if err := json.Unmarshal(body, &update); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}

		ctx := c.Request.Context()

		switch {
		case update.Poll != nil && update.Poll.IsClosed:
			// Closed polls are ignored; their vote counts are not applied.
		case update.Poll != nil:
			select {
			case deps.PollOut <- pollfanin.Update{UpdateID: update.UpdateID, Poll: *update.Poll}:
			case <-ctx.Done():
				slog.Default().WarnContext(ctx, "request ended before poll update was queued", "poll_id", update.Poll.ID)
			}
		case update.Message != nil:
			dispatchMessage(ctx, deps, update.Message)
		}

		c.Status(http.StatusOK)
	}
}

func dispatchMessage(ctx context.Context, deps Deps, msg *chatmodel.Message) {
	name, err := command.ParseCommand(msg, deps.BotUsername())
	if err != nil {
		slog.Default().ErrorContext(ctx, "parsing command", "error", err)
		botutil.UnexpectedErrorReply(ctx, deps.Chat, msg.Chat.ID, msg.MessageID)
		return
	}

	if name != nil {
		err := deps.Guard.Do(func() error {
			return command.Handle(ctx, deps.Pool, deps.CommandDeps, *name, msg)
		})
		if err != nil {
			slog.Default().ErrorContext(ctx, "handling command", "command", *name, "error", err)
			botutil.UnexpectedErrorReply(ctx, deps.Chat, msg.Chat.ID, msg.MessageID)
		}
		return
	}

	if msg.Animation != nil {
		err := deps.Guard.Do(func() error {
			return submission.Handle(ctx, deps.Pool, deps.Submission, msg)
		})
		if err != nil {
			slog.Default().ErrorContext(ctx, "handling submission", "error", err)
			botutil.UnexpectedErrorReply(ctx, deps.Chat, msg.Chat.ID, msg.MessageID)
		}
	}
}
