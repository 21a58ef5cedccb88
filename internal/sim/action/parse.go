package action

import (
	"errors"
	"fmt"
	"strings"
)

// Plan is one agent's declared intent for the turn, converted from the plan
// reply object. Zero-value Plan means the agent stays silent.
type Plan struct {
	Speak   []Speech
	Whisper []Speech
	Announce []string
	Mind     []string

	// TransStage is the destination stage name, "" for no transition. When a
	// reply lists several destinations only the first is honored.
	TransStage string

	// Appearance and Environment update the actor's look / the stage's
	// narrate text when present.
	Appearance  string
	Environment string
}

// Speech is a directed utterance. The reply encodes it as "@target>content".
type Speech struct {
	Target  string
	Content string
}

// Empty reports whether the plan carries no action at all.
func (p Plan) Empty() bool {
	return len(p.Speak) == 0 && len(p.Whisper) == 0 && len(p.Announce) == 0 &&
		len(p.Mind) == 0 && p.TransStage == "" && p.Appearance == "" && p.Environment == ""
}

// ParsePlan decodes a plan reply. Errors are ErrParse or ErrSchema; callers
// treat either as "agent is silent this turn".
func ParsePlan(raw string) (Plan, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return Plan{}, err
	}
	if err := planSchema.Validate(any(obj)); err != nil {
		return Plan{}, errors.Join(ErrSchema, err)
	}

	var p Plan
	for _, line := range lines(obj["speak"]) {
		if sp, ok := parseSpeech(line); ok {
			p.Speak = append(p.Speak, sp)
		}
	}
	for _, line := range lines(obj["whisper"]) {
		if sp, ok := parseSpeech(line); ok {
			p.Whisper = append(p.Whisper, sp)
		}
	}
	p.Announce = lines(obj["announce"])
	p.Mind = lines(obj["mind"])
	if dst := lines(obj["trans_stage"]); len(dst) > 0 {
		p.TransStage = dst[0]
	}
	if v := lines(obj["appearance"]); len(v) > 0 {
		p.Appearance = strings.Join(v, " ")
	}
	if v := lines(obj["environment"]); len(v) > 0 {
		p.Environment = strings.Join(v, " ")
	}
	return p, nil
}

// parseSpeech splits "@target>content". Lines without the marker are dropped
// rather than failing the whole plan.
func parseSpeech(line string) (Speech, bool) {
	if !strings.HasPrefix(line, "@") {
		return Speech{}, false
	}
	rest := line[1:]
	idx := strings.Index(rest, ">")
	if idx <= 0 {
		return Speech{}, false
	}
	target := strings.TrimSpace(rest[:idx])
	content := rest[idx+1:]
	if target == "" || content == "" {
		return Speech{}, false
	}
	return Speech{Target: target, Content: content}, true
}

// FormatSpeech renders the wire form of a directed utterance.
func FormatSpeech(target, content string) string {
	return fmt.Sprintf("@%s>%s", target, content)
}

// lines normalizes a reply value to a string slice: a bare string becomes a
// one-element slice, arrays keep their order, everything else is empty.
func lines(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Draw is a combat draw reply: an ordered shortlist of candidate plays.
type Draw struct {
	Cards []DrawnCard
}

type DrawnCard struct {
	Name   string
	Target string
	Reason string
}

func ParseDraw(raw string) (Draw, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return Draw{}, err
	}
	if err := drawSchema.Validate(any(obj)); err != nil {
		return Draw{}, errors.Join(ErrSchema, err)
	}
	var d Draw
	cards, _ := obj["cards"].([]any)
	for _, c := range cards {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		card := DrawnCard{
			Name:   str(m["name"]),
			Target: str(m["target"]),
			Reason: str(m["reason"]),
		}
		if card.Name != "" {
			d.Cards = append(d.Cards, card)
		}
	}
	if len(d.Cards) == 0 {
		return Draw{}, ErrSchema
	}
	return d, nil
}

// Choice is a combat card selection reply.
type Choice struct {
	Card   string
	Target string
}

func ParseChoice(raw string) (Choice, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return Choice{}, err
	}
	if err := choiceSchema.Validate(any(obj)); err != nil {
		return Choice{}, errors.Join(ErrSchema, err)
	}
	return Choice{Card: str(obj["card"]), Target: str(obj["target"])}, nil
}

// Verdict is the arbitration reply: the only authoritative source of HP
// change in combat.
type Verdict struct {
	Damage    map[string]int
	Effects   map[string][]string
	Narrative string
}

func ParseVerdict(raw string) (Verdict, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return Verdict{}, err
	}
	if err := verdictSchema.Validate(any(obj)); err != nil {
		return Verdict{}, errors.Join(ErrSchema, err)
	}
	v := Verdict{
		Damage:    map[string]int{},
		Effects:   map[string][]string{},
		Narrative: str(obj["narrative"]),
	}
	if dmg, ok := obj["damage"].(map[string]any); ok {
		for name, raw := range dmg {
			if f, ok := raw.(float64); ok {
				v.Damage[name] = int(f)
			}
		}
	}
	if eff, ok := obj["effects"].(map[string]any); ok {
		for name, raw := range eff {
			v.Effects[name] = lines(raw)
		}
	}
	return v, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
