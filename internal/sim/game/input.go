package game

import (
	"fmt"
	"regexp"
	"strings"
)

// Player command verbs.
const (
	VerbSpeak       = "/speak"
	VerbWhisper     = "/whisper"
	VerbSwitchStage = "/switch_stage"
	VerbQuit        = "/quit"
	VerbPlayCard    = "/play_card"
)

var verbKeys = map[string]map[string]bool{
	VerbSpeak:       {"target": true, "content": true},
	VerbWhisper:     {"target": true, "content": true},
	VerbSwitchStage: {"stage": true},
	VerbQuit:        {},
	VerbPlayCard:    {"card": true, "target": true},
}

// Command is one parsed player input line.
type Command struct {
	Verb string
	Args map[string]string
}

var argPattern = regexp.MustCompile(`--(\w+)\s*=\s*`)

// ParseCommand parses a single `/verb --key=value ...` line. Spaces are
// allowed around `=`, values run until the next `--key=` and may contain `=`,
// empty values are dropped, and keys unknown to the verb are ignored.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if input == "" || !strings.HasPrefix(input, "/") {
		return Command{}, fmt.Errorf("not a command: %q", input)
	}
	verb := input
	if i := strings.IndexAny(input, " \t"); i >= 0 {
		verb = input[:i]
	}
	allowed, ok := verbKeys[verb]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %s", verb)
	}

	args := map[string]string{}
	matches := argPattern.FindAllStringSubmatchIndex(input, -1)
	for i, m := range matches {
		key := input[m[2]:m[3]]
		end := len(input)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		value := strings.TrimSpace(input[m[1]:end])
		if value == "" || !allowed[key] {
			continue
		}
		args[key] = value
	}
	return Command{Verb: verb, Args: args}, nil
}
