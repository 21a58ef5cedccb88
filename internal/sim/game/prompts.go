package game

import (
	"fmt"
	"strings"

	"stagecraft.ai/internal/sim/components"
)

// Prompt composition. Every prompt states the JSON contract inline; the
// parser enforces it on the way back.

const planContract = `Reply with a single JSON object. Allowed keys:
  "speak":       list of "@name>text" entries, spoken aloud to someone in your stage
  "whisper":     list of "@name>text" entries, private to the target
  "announce":    list of texts heard by everyone in your stage
  "mind":        list of private thoughts, visible to nobody else
  "trans_stage": name of an adjacent stage to move to
Use only the keys you need. Do not add other keys or prose outside the JSON.`

const stageContract = `Reply with a single JSON object. Allowed keys:
  "environment": the updated description of your stage
  "announce":    list of texts heard by everyone in the stage
Do not add other keys or prose outside the JSON.`

func kickoffActorPrompt(content string) string {
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\nThe game begins now. Introduce yourself through your first plan.\n")
	b.WriteString(planContract)
	return b.String()
}

func kickoffStagePrompt(content string) string {
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\nThe game begins now. Describe your stage as the players first see it.\n")
	b.WriteString(stageContract)
	return b.String()
}

// planPrompt composes an NPC actor's turn prompt from its surroundings.
func (g *Game) planPrompt(actor string) string {
	e, _ := g.actorEntry(actor)
	a := components.ActorComponent.Get(e)
	var b strings.Builder
	fmt.Fprintf(&b, "You are in %s.\n", a.CurrentStage)
	if se, ok := g.stageEntry(a.CurrentStage); ok && se.HasComponent(components.StageEnvironmentComponent) {
		env := components.StageEnvironmentComponent.Get(se)
		if env.Narrative != "" {
			fmt.Fprintf(&b, "Surroundings: %s\n", env.Narrative)
		}
	}
	others := removeName(g.livingOccupants(a.CurrentStage), actor)
	if len(others) > 0 {
		fmt.Fprintf(&b, "Also present: %s.\n", strings.Join(others, ", "))
	}
	if se, ok := g.stageEntry(a.CurrentStage); ok && se.HasComponent(components.StageGraphComponent) {
		graph := components.StageGraphComponent.Get(se)
		if len(graph.Next) > 0 {
			fmt.Fprintf(&b, "Adjacent stages: %s.\n", strings.Join(graph.Next, ", "))
		}
	}
	b.WriteString("Decide what you do this turn.\n")
	b.WriteString(planContract)
	return b.String()
}

// stagePrompt asks the stage's own agent for an updated environment.
func (g *Game) stagePrompt(stage string) string {
	var b strings.Builder
	occ := g.livingOccupants(stage)
	if len(occ) > 0 {
		fmt.Fprintf(&b, "Present in your stage: %s.\n", strings.Join(occ, ", "))
	} else {
		b.WriteString("Your stage is currently empty.\n")
	}
	b.WriteString("Update the stage based on what has happened.\n")
	b.WriteString(stageContract)
	return b.String()
}

func drawPrompt(attrs *components.Attributes, inv *components.Inventory) string {
	var b strings.Builder
	b.WriteString("A combat round begins. Your stats:\n")
	fmt.Fprintf(&b, "  HP %d/%d, damage %d, defense %d\n", attrs.HP, attrs.MaxHP, attrs.Damage, attrs.Defense)
	if inv != nil && len(inv.Items) > 0 {
		b.WriteString("Your items:\n")
		for _, it := range inv.Items {
			fmt.Fprintf(&b, "  - %s x%d: %s\n", it.Name, it.Count, it.Description)
		}
	}
	b.WriteString(`Propose the skill cards you could play this round.
Reply with a single JSON object: {"cards": [{"name": "...", "target": "...", "reason": "..."}]}.`)
	return b.String()
}

func choosePrompt(hand []string, table string) string {
	var b strings.Builder
	b.WriteString("Choose one card to play this round.\n")
	fmt.Fprintf(&b, "Your hand: %s\n", strings.Join(hand, ", "))
	if table != "" {
		fmt.Fprintf(&b, "Table state:\n%s\n", table)
	}
	b.WriteString(`Reply with a single JSON object: {"card": "...", "target": "..."}.`)
	return b.String()
}

// arbitratePrompt hands the stage director every chosen play plus the
// participants' stats. Its verdict is the only source of HP change.
func (g *Game) arbitratePrompt(plays []chosenPlay) string {
	var b strings.Builder
	b.WriteString("You arbitrate this combat round. The plays, in order:\n")
	for _, p := range plays {
		fmt.Fprintf(&b, "  - %s plays %q targeting %s\n", p.Actor, p.Card, p.Target)
	}
	b.WriteString("Participant stats:\n")
	for _, p := range plays {
		if e, ok := g.actorEntry(p.Actor); ok && e.HasComponent(components.AttributesComponent) {
			at := components.AttributesComponent.Get(e)
			fmt.Fprintf(&b, "  - %s: HP %d/%d, damage %d, defense %d\n", p.Actor, at.HP, at.MaxHP, at.Damage, at.Defense)
		}
	}
	b.WriteString(`Resolve the round. Reply with a single JSON object:
{"narrative": "...", "damage": {"<actor>": <int>, ...}, "effects": {"<actor>": ["...", ...], ...}}.
Damage values are HP lost by that actor this round.`)
	return b.String()
}
