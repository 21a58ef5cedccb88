package game

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name  string
		input string
		verb  string
		args  map[string]string
	}{
		{
			name:  "basic speak",
			input: "/speak --target=Mage --content=hello there",
			verb:  VerbSpeak,
			args:  map[string]string{"target": "Mage", "content": "hello there"},
		},
		{
			name:  "spaces around equals",
			input: "/speak --target = Mage --content =  hello",
			verb:  VerbSpeak,
			args:  map[string]string{"target": "Mage", "content": "hello"},
		},
		{
			name:  "value containing equals",
			input: "/speak --target=Mage --content=2+2=4, trust me",
			verb:  VerbSpeak,
			args:  map[string]string{"target": "Mage", "content": "2+2=4, trust me"},
		},
		{
			name:  "empty value dropped",
			input: "/speak --target= --content=hello",
			verb:  VerbSpeak,
			args:  map[string]string{"content": "hello"},
		},
		{
			name:  "whitespace value dropped",
			input: "/whisper --target=Mage --content=   ",
			verb:  VerbWhisper,
			args:  map[string]string{"target": "Mage"},
		},
		{
			name:  "unknown key ignored",
			input: "/switch_stage --stage=Cave --mood=grim",
			verb:  VerbSwitchStage,
			args:  map[string]string{"stage": "Cave"},
		},
		{
			name:  "bare quit",
			input: "  /quit  ",
			verb:  VerbQuit,
			args:  map[string]string{},
		},
		{
			name:  "play card",
			input: "/play_card --card=Strike --target=Goblin",
			verb:  VerbPlayCard,
			args:  map[string]string{"card": "Strike", "target": "Goblin"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := ParseCommand(tc.input)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if cmd.Verb != tc.verb {
				t.Fatalf("verb = %q, want %q", cmd.Verb, tc.verb)
			}
			if !reflect.DeepEqual(cmd.Args, tc.args) {
				t.Fatalf("args = %v, want %v", cmd.Args, tc.args)
			}
		})
	}
}

func TestParseCommandRejects(t *testing.T) {
	for _, input := range []string{"", "hello", "--target=Mage", "/dance --hard=yes"} {
		if _, err := ParseCommand(input); err == nil {
			t.Fatalf("ParseCommand(%q) succeeded, want error", input)
		}
	}
}
