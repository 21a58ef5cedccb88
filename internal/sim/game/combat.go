package game

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/looplab/fsm"

	"stagecraft.ai/internal/chatpool"
	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/action"
	"stagecraft.ai/internal/sim/components"
)

// Combat phases.
const (
	phaseIdle      = "idle"
	phaseChoosing  = "choosing"
	phaseResolving = "resolving"
	phaseDone      = "done"
)

// combatRound is the transient state of an active combat. The fsm tracks
// which half of the round the next player request lands in.
type combatRound struct {
	party     []string
	defenders []string
	round     int
	phase     *fsm.FSM
	hands     map[string][]action.DrawnCard
}

type chosenPlay struct {
	Actor  string
	Card   string
	Target string
}

func newCombatRound(party, defenders []string) *combatRound {
	return &combatRound{
		party:     party,
		defenders: defenders,
		round:     1,
		hands:     map[string][]action.DrawnCard{},
		phase: fsm.NewFSM(
			phaseIdle,
			fsm.Events{
				{Name: "draw", Src: []string{phaseIdle, phaseResolving}, Dst: phaseChoosing},
				{Name: "play", Src: []string{phaseChoosing}, Dst: phaseResolving},
				{Name: "finish", Src: []string{phaseIdle, phaseChoosing, phaseResolving}, Dst: phaseDone},
			},
			fsm.Callbacks{},
		),
	}
}

// RunDungeonTurn executes one combat request. The first call after entering
// a level draws the opening hands; each later call plays the player's chosen
// card, gathers NPC choices, arbitrates, and applies the verdict, then draws
// the next round's hands.
func (g *Game) RunDungeonTurn(ctx context.Context, input string) error {
	if !g.Started() {
		return fmt.Errorf("game not started")
	}
	if !g.CombatActive() {
		return fmt.Errorf("no combat in progress")
	}
	c := g.combat

	switch c.phase.Current() {
	case phaseIdle:
		if err := g.combatDraw(ctx); err != nil {
			return err
		}
		g.phaseEvent(ctx, "draw")
		g.pushCombatState()
	case phaseChoosing:
		play, err := g.playerPlay(input)
		if err != nil {
			return err
		}
		g.phaseEvent(ctx, "play")

		plays := g.gatherPlays(ctx, play)
		verdict, ok := g.arbitrate(ctx, plays)
		if !ok {
			g.abortCombat()
			return g.endTurn()
		}
		g.applyVerdict(verdict)
		g.runDeath()
		g.dispatchEvents()

		if g.resolveCombatEnd() {
			g.runItemPrune()
			return g.endTurn()
		}
		c.round++
		if c.round > g.tun.Combat.MaxRounds {
			g.abortCombat()
			return g.endTurn()
		}
		if err := g.combatDraw(ctx); err != nil {
			return err
		}
		g.phaseEvent(ctx, "draw")
		g.pushCombatState()
	default:
		return fmt.Errorf("combat is not accepting input")
	}

	g.runItemPrune()
	return g.endTurn()
}

// phaseEvent drives the round state machine. The transition table above is
// exhaustive over the states RunDungeonTurn dispatches on, so a refusal here
// is a programming error; it is logged rather than swallowed.
func (g *Game) phaseEvent(ctx context.Context, name string) {
	if err := g.combat.phase.Event(ctx, name); err != nil {
		g.log.Printf("game %s/%s: combat phase %q from %s: %v", g.User, g.Name, name, g.combat.phase.Current(), err)
	}
}

// livingCombatants returns the living participants sorted by name.
func (g *Game) livingCombatants() []string {
	var names []string
	for _, name := range append(append([]string(nil), g.combat.party...), g.combat.defenders...) {
		if e, ok := g.actorEntry(name); ok && !e.HasComponent(components.DeathTag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// combatDraw prompts every living participant for this round's candidate
// cards and resets the round logs.
func (g *Game) combatDraw(ctx context.Context) error {
	names := g.livingCombatants()
	handlers := make([]*chatpool.Handler, len(names))
	for i, name := range names {
		e, _ := g.actorEntry(name)
		attrs := components.AttributesComponent.Get(e)
		var inv *components.Inventory
		if e.HasComponent(components.InventoryComponent) {
			inv = components.InventoryComponent.Get(e)
		}
		if e.HasComponent(components.RoundEventsComponent) {
			components.RoundEventsComponent.Get(e).Events = nil
		}
		handlers[i] = &chatpool.Handler{
			AgentName:    name,
			SystemPrompt: g.agents.SystemPrompt(name),
			Context:      g.agents.Context(name),
			UserMessage:  drawPrompt(attrs, inv),
		}
	}
	g.chat.Gather(ctx, handlers)

	for i, name := range names {
		h := handlers[i]
		if h.Failed() {
			g.log.Printf("game %s/%s: draw for %s failed: %v", g.User, g.Name, name, h.Err)
			g.combat.hands[name] = nil
			continue
		}
		draw, err := action.ParseDraw(h.Reply)
		if err != nil {
			g.log.Printf("game %s/%s: draw for %s rejected: %v", g.User, g.Name, name, err)
			g.combat.hands[name] = nil
			continue
		}
		g.agents.AppendHuman(name, h.UserMessage, map[string]string{"kind": "draw"})
		g.agents.AppendAI(name, h.Reply, nil)
		cards := draw.Cards
		if max := g.tun.Combat.HandSize; len(cards) > max {
			cards = cards[:max]
		}
		g.combat.hands[name] = cards
	}
	return nil
}

// playerPlay validates the player's /play_card command against their hand.
func (g *Game) playerPlay(input string) (chosenPlay, error) {
	cmd, err := ParseCommand(input)
	if err != nil {
		return chosenPlay{}, err
	}
	if cmd.Verb != VerbPlayCard {
		return chosenPlay{}, fmt.Errorf("combat expects %s", VerbPlayCard)
	}
	card := cmd.Args["card"]
	if card == "" {
		return chosenPlay{}, fmt.Errorf("%s needs --card", VerbPlayCard)
	}
	hand := g.combat.hands[g.player]
	if len(hand) > 0 {
		found := false
		for _, c := range hand {
			if c.Name == card {
				found = true
				break
			}
		}
		if !found {
			return chosenPlay{}, fmt.Errorf("%q is not in your hand", card)
		}
	}
	return chosenPlay{Actor: g.player, Card: card, Target: cmd.Args["target"]}, nil
}

// gatherPlays collects every NPC's card choice and slots the player's play
// into the deterministic name order. A silent NPC simply plays nothing.
func (g *Game) gatherPlays(ctx context.Context, player chosenPlay) []chosenPlay {
	names := g.livingCombatants()
	table := g.tableState()

	var npcs []string
	for _, name := range names {
		if name != g.player && len(g.combat.hands[name]) > 0 {
			npcs = append(npcs, name)
		}
	}
	handlers := make([]*chatpool.Handler, len(npcs))
	for i, name := range npcs {
		var hand []string
		for _, c := range g.combat.hands[name] {
			hand = append(hand, c.Name)
		}
		handlers[i] = &chatpool.Handler{
			AgentName:    name,
			SystemPrompt: g.agents.SystemPrompt(name),
			Context:      g.agents.Context(name),
			UserMessage:  choosePrompt(hand, table),
		}
	}
	g.chat.Gather(ctx, handlers)

	choice := map[string]chosenPlay{g.player: player}
	for i, name := range npcs {
		h := handlers[i]
		if h.Failed() {
			continue
		}
		ch, err := action.ParseChoice(h.Reply)
		if err != nil {
			g.log.Printf("game %s/%s: choice for %s rejected: %v", g.User, g.Name, name, err)
			continue
		}
		g.agents.AppendHuman(name, h.UserMessage, map[string]string{"kind": "choose"})
		g.agents.AppendAI(name, h.Reply, nil)
		choice[name] = chosenPlay{Actor: name, Card: ch.Card, Target: ch.Target}
	}

	var plays []chosenPlay
	for _, name := range names {
		if p, ok := choice[name]; ok {
			plays = append(plays, p)
		}
	}
	return plays
}

// arbitrate sends the round to the stage director and parses its verdict,
// re-rolling on a malformed reply. Returns false once the re-roll budget is
// spent.
func (g *Game) arbitrate(ctx context.Context, plays []chosenPlay) (action.Verdict, bool) {
	stage := g.combatStage()
	prompt := g.arbitratePrompt(plays)
	for attempt := 0; attempt < g.tun.ArbitrationRerolls; attempt++ {
		h := &chatpool.Handler{
			AgentName:    stage,
			SystemPrompt: g.agents.SystemPrompt(stage),
			Context:      g.agents.Context(stage),
			UserMessage:  prompt,
		}
		g.chat.Gather(ctx, []*chatpool.Handler{h})
		if h.Failed() {
			continue
		}
		verdict, err := action.ParseVerdict(h.Reply)
		if err != nil {
			g.log.Printf("game %s/%s: arbitration attempt %d rejected: %v", g.User, g.Name, attempt+1, err)
			continue
		}
		g.agents.AppendHuman(stage, h.UserMessage, map[string]string{"kind": "arbitrate"})
		g.agents.AppendAI(stage, h.Reply, nil)
		return verdict, true
	}
	return action.Verdict{}, false
}

// applyVerdict is the only place combat changes HP.
func (g *Game) applyVerdict(v action.Verdict) {
	stage := g.combatStage()
	var logLines []string
	for _, name := range g.livingCombatants() {
		dmg, hit := v.Damage[name]
		if !hit || dmg <= 0 {
			continue
		}
		e, ok := g.actorEntry(name)
		if !ok {
			continue
		}
		attrs := components.AttributesComponent.Get(e)
		attrs.HP -= dmg
		if attrs.HP < 0 {
			attrs.HP = 0
		}
		logLines = append(logLines, fmt.Sprintf("%s takes %d damage (%d/%d HP).", name, dmg, attrs.HP, attrs.MaxHP))
		for _, eff := range v.Effects[name] {
			logLines = append(logLines, fmt.Sprintf("%s is affected: %s", name, eff))
		}
	}
	arbitrationEvents.Publish(g.world, CombatArbitrationEvent{
		Stage:     stage,
		Log:       strings.Join(logLines, "\n"),
		Narrative: v.Narrative,
	})
}

// resolveCombatEnd archives the fight when one side has no one left
// standing. Victory advances the dungeon; the player's death ends the run.
func (g *Game) resolveCombatEnd() bool {
	alive := func(names []string) bool {
		for _, n := range names {
			if e, ok := g.actorEntry(n); ok && !e.HasComponent(components.DeathTag) {
				return true
			}
		}
		return false
	}
	switch {
	case !alive(g.combat.party):
		g.dungeon.Defeated = true
		g.archiveCombat("The party was defeated. The dungeon run is over.")
		return true
	case !alive(g.combat.defenders):
		g.dungeon.Advance()
		g.archiveCombat("The enemy was defeated. The level is cleared.")
		return true
	}
	return false
}

// abortCombat ends the fight without touching HP after arbitration failed
// its re-roll budget or the round limit was hit.
func (g *Game) abortCombat() {
	arbitrationEvents.Publish(g.world, CombatArbitrationEvent{
		Stage:     g.combatStage(),
		Narrative: "The fight collapses into confusion and cannot be resolved.",
		Aborted:   true,
	})
	g.archiveCombat("Combat was interrupted and ended without a resolution.")
}

// archiveCombat emits the durable per-participant memory and tears the
// combat down.
func (g *Game) archiveCombat(summary string) {
	c := g.combat
	for _, name := range append(append([]string(nil), c.party...), c.defenders...) {
		if g.agents.Has(name) {
			archiveEvents.Publish(g.world, CombatArchiveEvent{Actor: name, Summary: summary})
		}
	}
	g.combat.phase.SetState(phaseDone)
	g.disarmCombat()
	g.dispatchEvents()
	g.pushStageState()
}

// combatStage is the stage the fight happens in, which is also the
// arbitrating director agent.
func (g *Game) combatStage() string {
	if level, ok := g.dungeon.Current(); ok {
		return level
	}
	// After a victory the cursor has moved; fall back to the player's stage.
	if e, ok := g.actorEntry(g.player); ok {
		return components.ActorComponent.Get(e).CurrentStage
	}
	return ""
}

// tableState summarizes the visible board for choice prompts.
func (g *Game) tableState() string {
	var b strings.Builder
	for _, name := range g.livingCombatants() {
		if e, ok := g.actorEntry(name); ok && e.HasComponent(components.AttributesComponent) {
			at := components.AttributesComponent.Get(e)
			fmt.Fprintf(&b, "%s: HP %d/%d\n", name, at.HP, at.MaxHP)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

type combatStateBody struct {
	Round int            `json:"round"`
	Phase string         `json:"phase"`
	Hand  []string       `json:"hand"`
	HP    map[string]int `json:"hp"`
}

// pushCombatState mirrors the player's hand and the board onto the session
// feed so the client can render the choice.
func (g *Game) pushCombatState() {
	body := combatStateBody{
		Round: g.combat.round,
		Phase: g.combat.phase.Current(),
		HP:    map[string]int{},
	}
	for _, c := range g.combat.hands[g.player] {
		body.Hand = append(body.Hand, c.Name)
	}
	for _, name := range g.livingCombatants() {
		if e, ok := g.actorEntry(name); ok && e.HasComponent(components.AttributesComponent) {
			body.HP[name] = components.AttributesComponent.Get(e).HP
		}
	}
	g.queue.Append(protocol.SessionCombatState, body)
}
