// Package command parses slash commands addressed to the bot.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/toran-bot/engage/internal/model"
)

// Kind identifies a parsed command.
type Kind string

const (
	KindHelp      Kind = "help"
	KindSummary   Kind = "summary"
	KindThreshold Kind = "threshold"
	KindMode      Kind = "mode"
	KindOptOut    Kind = "optout"
	KindReset     Kind = "reset"
)

// ErrUnknownCommand is returned for text that starts with a slash but
// matches no known command.
var ErrUnknownCommand = errors.New("unknown command")

// ErrInvalidArgument is returned when a known command carries a malformed
// or out-of-range argument.
var ErrInvalidArgument = errors.New("invalid command argument")

// Command is a parsed slash command. Only the field matching Kind is set.
type Command struct {
	Kind      Kind
	Period    model.Period
	Threshold float64
	Mode      model.Mode
}

// Is reports whether text looks like a slash command.
func Is(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Parse parses a slash command.
func Parse(text string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}

	switch strings.ToLower(fields[0]) {
	case "/help":
		return Command{Kind: KindHelp}, nil

	case "/summary":
		period := model.PeriodWeekly
		if len(fields) > 1 {
			period = model.Period(strings.ToLower(fields[1]))
			if !model.ValidPeriod(period) {
				return Command{}, fmt.Errorf("%w: period must be weekly or monthly, got %q", ErrInvalidArgument, fields[1])
			}
		}
		return Command{Kind: KindSummary, Period: period}, nil

	case "/settings":
		return parseSettings(fields[1:])

	case "/optout":
		return Command{Kind: KindOptOut}, nil

	case "/reset":
		return Command{Kind: KindReset}, nil

	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
}

func parseSettings(args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, fmt.Errorf("%w: usage is /settings threshold <0..1> or /settings mode <quiet|normal|active>", ErrInvalidArgument)
	}

	switch strings.ToLower(args[0]) {
	case "threshold":
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil || v < 0 || v > 1 {
			return Command{}, fmt.Errorf("%w: threshold must be a number in [0, 1], got %q", ErrInvalidArgument, args[1])
		}
		return Command{Kind: KindThreshold, Threshold: v}, nil

	case "mode":
		mode := model.Mode(strings.ToLower(args[1]))
		if !model.ValidMode(mode) {
			return Command{}, fmt.Errorf("%w: mode must be quiet, normal or active, got %q", ErrInvalidArgument, args[1])
		}
		return Command{Kind: KindMode, Mode: mode}, nil

	default:
		return Command{}, fmt.Errorf("%w: unknown setting %q", ErrInvalidArgument, args[0])
	}
}

// HelpText is the reply body for /help.
const HelpText = `Commands:
/help - show this message
/summary [weekly|monthly] - summarize recent conversation
/settings threshold <0..1> - set the proactive reply threshold
/settings mode <quiet|normal|active> - set the engagement mode
/optout - exclude your messages from summaries
/reset - restore this chat's default settings`
