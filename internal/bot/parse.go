package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseTermArg returns the search term given to a command.
func ParseTermArg(args string) (string, error) {
	term := strings.TrimSpace(args)
	if term == "" {
		return "", errors.New("search term is required")
	}
	return term, nil
}

// ParseHistoryArgs parses "<term> [count]". A trailing number is taken as
// the count; def is used when it is absent.
func ParseHistoryArgs(args string, def, limit int) (string, int, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", 0, errors.New("usage: /history <term> [count]")
	}

	n := def
	if len(parts) > 1 {
		if v, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if v < 1 || v > limit {
				return "", 0, fmt.Errorf("count must be between 1 and %d", limit)
			}
			n = v
			parts = parts[:len(parts)-1]
		}
	}
	return strings.Join(parts, " "), n, nil
}

// parseCallbackData splits "action:term".
func parseCallbackData(data string) (action, term string, ok bool) {
	action, term, ok = strings.Cut(data, ":")
	if !ok || action == "" {
		return "", "", false
	}
	return action, term, true
}
