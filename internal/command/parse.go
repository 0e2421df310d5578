// Package command parses and dispatches the chat's administrative
// commands: start, startvoting, abort, help.
package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kartikbazzad/gifdome/internal/apperror"
	"github.com/kartikbazzad/gifdome/internal/chatmodel"
)

// Name is one of the four recognized commands.
type Name string

const (
	Abort       Name = "abort"
	Help        Name = "help"
	Start       Name = "start"
	StartVoting Name = "startvoting"
)

func parseName(s string) (Name, bool) {
	switch Name(strings.ToLower(s)) {
	case Abort, Help, Start, StartVoting:
		return Name(strings.ToLower(s)), true
	default:
		return "", false
	}
}

// findCommandEntity returns the single bot-command entity in the message,
// if any. Entities and caption entities are mutually exclusive; a message
// carrying both, or carrying more than one bot-command entity, is rejected.
func findCommandEntity(msg *chatmodel.Message) (*chatmodel.MessageEntity, error) {
	if len(msg.Entities) > 0 && len(msg.CaptionEntities) > 0 {
		return nil, apperror.UnexpectedErr("message carries both entities and caption_entities", nil)
	}
	entities := msg.Entities
	if len(entities) == 0 {
		entities = msg.CaptionEntities
	}
	var found *chatmodel.MessageEntity
	for i := range entities {
		if entities[i].Type == "bot_command" {
			if found != nil {
				return nil, apperror.UnexpectedErr("message carries more than one command entity", nil)
			}
			found = &entities[i]
		}
	}
	return found, nil
}

// ParseCommand extracts the command a message invokes, if any. botUsername
// is empty if the bot's own username is not yet known; in that case a
// command suffixed @something is rejected as not-for-this-instance.
func ParseCommand(msg *chatmodel.Message, botUsername string) (*Name, error) {
	entity, err := findCommandEntity(msg)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}

	text := msg.TextOrCaption()
	runes := []rune(text)
	if entity.Offset < 0 || entity.Offset+entity.Length > len(runes) {
		return nil, apperror.UnexpectedErr("command entity out of bounds", nil)
	}
	commandText := string(runes[entity.Offset : entity.Offset+entity.Length])

	var pattern *regexp.Regexp
	if botUsername != "" {
		pattern = regexp.MustCompile(`^/(?P<cmd>[0-9A-Za-z_]+)(@(?P<username>[0-9A-Za-z_]+))?$`)
	} else {
		pattern = regexp.MustCompile(`^/(?P<cmd>[0-9A-Za-z_]+)$`)
	}

	match := pattern.FindStringSubmatch(commandText)
	if match == nil {
		return nil, nil
	}

	names := pattern.SubexpNames()
	var cmdStr, usernameStr string
	for i, name := range names {
		switch name {
		case "cmd":
			cmdStr = match[i]
		case "username":
			usernameStr = match[i]
		}
	}

	if usernameStr != "" && !strings.EqualFold(usernameStr, botUsername) {
		return nil, nil
	}

	name, ok := parseName(cmdStr)
	if !ok {
		return nil, nil
	}
	return &name, nil
}

// StartVotingParams is the parsed, validated parameter pair for /startvoting.
type StartVotingParams struct {
	MinVotes uint8
	Rounds   uint8
}

var startVotingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*/startvoting(@[0-9A-Za-z_]+)?\s+minimumvotes=(?P<minvotes>\d+)\s+rounds=(?P<rounds>\d+)\s*$`),
	regexp.MustCompile(`(?i)^\s*/startvoting(@[0-9A-Za-z_]+)?\s+rounds=(?P<rounds>\d+)\s+minimumvotes=(?P<minvotes>\d+)\s*$`),
}

// ParseStartVotingParams parses "minimumvotes=<n> rounds=<n>" in either
// order, validating min_votes in [1,255] and rounds in [1,maxRounds]. A
// parse or range failure returns ok=false, never an error, matching the
// original's "reply with usage hint" precondition semantics.
func ParseStartVotingParams(text string, maxRounds uint8) (params StartVotingParams, ok bool) {
	for _, pattern := range startVotingPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		names := pattern.SubexpNames()
		var minVotesStr, roundsStr string
		for i, name := range names {
			switch name {
			case "minvotes":
				minVotesStr = match[i]
			case "rounds":
				roundsStr = match[i]
			}
		}
		var minVotes, rounds int
		if _, err := fmt.Sscanf(minVotesStr, "%d", &minVotes); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(roundsStr, "%d", &rounds); err != nil {
			continue
		}
		if minVotes < 1 || minVotes > 255 {
			continue
		}
		if rounds < 1 || rounds > int(maxRounds) {
			continue
		}
		return StartVotingParams{MinVotes: uint8(minVotes), Rounds: uint8(rounds)}, true
	}
	return StartVotingParams{}, false
}
