package game

import (
	"context"
	"fmt"
	"sort"

	"github.com/yohamta/donburi"

	"stagecraft.ai/internal/chatpool"
	"stagecraft.ai/internal/sim/action"
	"stagecraft.ai/internal/sim/components"
)

// PersistFunc is invoked at the end of a turn on the snapshot cadence. A
// persist failure is fatal for the turn.
type PersistFunc func(*Game) error

// OnPersist installs the checkpoint hook. Nil disables checkpointing.
func (g *Game) OnPersist(fn PersistFunc) { g.persist = fn }

// RunHomeTurn executes one out-of-combat turn: route the player command,
// gather NPC plans, translate them into events, apply stage transitions,
// then sweep deaths and spent items.
func (g *Game) RunHomeTurn(ctx context.Context, input string) error {
	if !g.Started() {
		return fmt.Errorf("game not started")
	}
	if g.CombatActive() {
		return fmt.Errorf("combat in progress; use the dungeon surface")
	}

	if err := g.runKickoff(ctx); err != nil {
		return err
	}

	moves, err := g.routePlayerInput(input)
	if err != nil {
		return err
	}
	g.dispatchEvents()

	npcMoves, err := g.runPlan(ctx)
	if err != nil {
		return err
	}
	moves = append(moves, npcMoves...)
	g.dispatchEvents()

	g.runTransStage(moves)
	g.dispatchEvents()

	if err := g.runStageUpdate(ctx); err != nil {
		return err
	}
	g.dispatchEvents()

	g.runDeath()
	g.runItemPrune()
	g.dispatchEvents()

	return g.endTurn()
}

// pendingMove is a stage transition decided earlier in the turn and applied
// by the trans-stage processor.
type pendingMove struct {
	Actor string
	To    string
}

// routePlayerInput translates the raw command into events and pending moves.
// An empty input means the player passes the turn.
func (g *Game) routePlayerInput(input string) ([]pendingMove, error) {
	if input == "" {
		return nil, nil
	}
	cmd, err := ParseCommand(input)
	if err != nil {
		return nil, err
	}
	switch cmd.Verb {
	case VerbSpeak:
		target, content := cmd.Args["target"], cmd.Args["content"]
		if target == "" || content == "" {
			return nil, fmt.Errorf("%s needs --target and --content", VerbSpeak)
		}
		targetStage, ok := g.actorStage(target)
		if !ok {
			return nil, fmt.Errorf("no such actor %q", target)
		}
		// Speech is stage-local; only whispers carry across.
		if here, _ := g.actorStage(g.player); targetStage != here {
			return nil, fmt.Errorf("%s is not in your stage", target)
		}
		speakEvents.Publish(g.world, SpeakEvent{Actor: g.player, Target: target, Content: content})
	case VerbWhisper:
		target, content := cmd.Args["target"], cmd.Args["content"]
		if target == "" || content == "" {
			return nil, fmt.Errorf("%s needs --target and --content", VerbWhisper)
		}
		if _, ok := g.actorEntry(target); !ok {
			return nil, fmt.Errorf("no such actor %q", target)
		}
		whisperEvents.Publish(g.world, WhisperEvent{Actor: g.player, Target: target, Content: content})
	case VerbSwitchStage:
		stage := cmd.Args["stage"]
		if stage == "" {
			return nil, fmt.Errorf("%s needs --stage", VerbSwitchStage)
		}
		if err := g.checkTransStage(g.player, stage); err != nil {
			return nil, err
		}
		return []pendingMove{{Actor: g.player, To: stage}}, nil
	case VerbQuit:
		// The transport saves and detaches; nothing happens in-world.
		return nil, nil
	default:
		return nil, fmt.Errorf("%s is not valid here", cmd.Verb)
	}
	return nil, nil
}

// runPlan prompts every living NPC sharing the player's stage for its turn
// plan and translates valid plans into events. A failed or malformed reply
// leaves that agent silent.
func (g *Game) runPlan(ctx context.Context) ([]pendingMove, error) {
	pe, ok := g.actorEntry(g.player)
	if !ok {
		return nil, fmt.Errorf("player actor missing")
	}
	stage := components.ActorComponent.Get(pe).CurrentStage

	var npcs []string
	for _, name := range g.livingOccupants(stage) {
		if name != g.player {
			npcs = append(npcs, name)
		}
	}
	sort.Strings(npcs)
	if len(npcs) == 0 {
		return nil, nil
	}

	handlers := make([]*chatpool.Handler, len(npcs))
	for i, name := range npcs {
		handlers[i] = &chatpool.Handler{
			AgentName:    name,
			SystemPrompt: g.agents.SystemPrompt(name),
			Context:      g.agents.Context(name),
			UserMessage:  g.planPrompt(name),
		}
	}
	g.chat.Gather(ctx, handlers)

	var moves []pendingMove
	for i, name := range npcs {
		h := handlers[i]
		if h.Failed() {
			g.log.Printf("game %s/%s: plan for %s failed: %v", g.User, g.Name, name, h.Err)
			continue
		}
		plan, err := action.ParsePlan(h.Reply)
		if err != nil {
			g.log.Printf("game %s/%s: plan for %s rejected: %v", g.User, g.Name, name, err)
			continue
		}
		g.agents.AppendHuman(name, h.UserMessage, map[string]string{"kind": "plan"})
		g.agents.AppendAI(name, h.Reply, nil)
		moves = append(moves, g.applyPlan(name, plan)...)
	}
	return moves, nil
}

// applyPlan turns one actor's parsed plan into events. World errors are
// refused at this boundary: the offending action is dropped and the agent
// told why through a mind event.
func (g *Game) applyPlan(actor string, plan action.Plan) []pendingMove {
	reject := func(format string, args ...any) {
		mindEvents.Publish(g.world, MindEvent{
			Actor:   actor,
			Content: "Your action was rejected: " + fmt.Sprintf(format, args...),
		})
	}
	for _, sp := range plan.Speak {
		targetStage, ok := g.actorStage(sp.Target)
		if !ok {
			reject("no such actor %q", sp.Target)
			continue
		}
		if here, _ := g.actorStage(actor); targetStage != here {
			reject("%s is not in your stage", sp.Target)
			continue
		}
		speakEvents.Publish(g.world, SpeakEvent{Actor: actor, Target: sp.Target, Content: sp.Content})
	}
	for _, sp := range plan.Whisper {
		if _, ok := g.actorEntry(sp.Target); !ok {
			reject("no such actor %q", sp.Target)
			continue
		}
		whisperEvents.Publish(g.world, WhisperEvent{Actor: actor, Target: sp.Target, Content: sp.Content})
	}
	if e, ok := g.actorEntry(actor); ok {
		stage := components.ActorComponent.Get(e).CurrentStage
		for _, text := range plan.Announce {
			announceEvents.Publish(g.world, AnnounceEvent{Actor: actor, Stage: stage, Content: text})
		}
	}
	for _, text := range plan.Mind {
		mindEvents.Publish(g.world, MindEvent{Actor: actor, Content: text})
	}

	var moves []pendingMove
	if plan.TransStage != "" {
		if err := g.checkTransStage(actor, plan.TransStage); err != nil {
			reject("%v", err)
		} else {
			moves = append(moves, pendingMove{Actor: actor, To: plan.TransStage})
		}
	}
	if plan.Appearance != "" {
		if e, ok := g.actorEntry(actor); ok {
			donburi.Add(e, components.AppearanceComponent, &components.Appearance{Description: plan.Appearance})
		}
	}
	return moves
}

// checkTransStage validates a transition without applying it: the stage must
// exist and, where the current stage declares a graph, be adjacent.
func (g *Game) checkTransStage(actor, to string) error {
	ae, ok := g.actorEntry(actor)
	if !ok {
		return fmt.Errorf("no such actor %q", actor)
	}
	if _, ok := g.stageEntry(to); !ok {
		return fmt.Errorf("no such stage %q", to)
	}
	from := components.ActorComponent.Get(ae).CurrentStage
	if from == to {
		return fmt.Errorf("already in %s", to)
	}
	if fe, ok := g.stageEntry(from); ok && fe.HasComponent(components.StageGraphComponent) {
		graph := components.StageGraphComponent.Get(fe)
		for _, next := range graph.Next {
			if next == to {
				return nil
			}
		}
		return fmt.Errorf("%s is not reachable from %s", to, from)
	}
	return nil
}

// runTransStage applies the turn's validated moves in decision order,
// capturing witness lists around each move.
func (g *Game) runTransStage(moves []pendingMove) {
	for _, m := range moves {
		ae, ok := g.actorEntry(m.Actor)
		if !ok {
			continue
		}
		from := components.ActorComponent.Get(ae).CurrentStage
		fromActors := g.occupants(from)
		toActors := g.occupants(m.To)
		if err := g.moveActor(m.Actor, m.To); err != nil {
			mindEvents.Publish(g.world, MindEvent{
				Actor:   m.Actor,
				Content: "Your action was rejected: " + err.Error(),
			})
			continue
		}
		transStageEvents.Publish(g.world, TransStageEvent{
			Actor: m.Actor, From: from, To: m.To,
			FromActors: fromActors, ToActors: toActors,
		})
	}
	if len(moves) > 0 {
		g.pushStageState()
	}
}

// runStageUpdate asks the player's current stage agent to refresh its
// environment after the turn's events.
func (g *Game) runStageUpdate(ctx context.Context) error {
	pe, ok := g.actorEntry(g.player)
	if !ok {
		return fmt.Errorf("player actor missing")
	}
	stage := components.ActorComponent.Get(pe).CurrentStage
	se, ok := g.stageEntry(stage)
	if !ok || !g.agents.Initialized(stage) {
		return nil
	}

	h := &chatpool.Handler{
		AgentName:    stage,
		SystemPrompt: g.agents.SystemPrompt(stage),
		Context:      g.agents.Context(stage),
		UserMessage:  g.stagePrompt(stage),
	}
	g.chat.Gather(ctx, []*chatpool.Handler{h})
	if h.Failed() {
		g.log.Printf("game %s/%s: stage update for %s failed: %v", g.User, g.Name, stage, h.Err)
		return nil
	}
	plan, err := action.ParsePlan(h.Reply)
	if err != nil {
		g.log.Printf("game %s/%s: stage update for %s rejected: %v", g.User, g.Name, stage, err)
		return nil
	}
	g.agents.AppendHuman(stage, h.UserMessage, map[string]string{"kind": "stage_update"})
	g.agents.AppendAI(stage, h.Reply, nil)
	if plan.Environment != "" {
		env := components.StageEnvironmentComponent.Get(se)
		env.Narrative = plan.Environment
	}
	for _, text := range plan.Announce {
		announceEvents.Publish(g.world, AnnounceEvent{Actor: stage, Stage: stage, Content: text})
	}
	return nil
}

// runDeath marks every actor whose HP has reached zero. Dead actors are
// filtered out of all subsequent processors.
func (g *Game) runDeath() {
	var dead []*donburi.Entry
	actorQuery.Each(g.world, func(e *donburi.Entry) {
		if e.HasComponent(components.DeathTag) || !e.HasComponent(components.AttributesComponent) {
			return
		}
		if components.AttributesComponent.Get(e).HP <= 0 {
			dead = append(dead, e)
		}
	})
	for _, e := range dead {
		e.AddComponent(components.DeathTag)
		name := components.ActorComponent.Get(e).Name
		stage := components.ActorComponent.Get(e).CurrentStage
		announceEvents.Publish(g.world, AnnounceEvent{
			Actor: name, Stage: stage, Content: fmt.Sprintf("%s has fallen.", name),
		})
	}
}

// runItemPrune drops inventory entries whose count reached zero.
func (g *Game) runItemPrune() {
	inventoryQuery.Each(g.world, func(e *donburi.Entry) {
		inv := components.InventoryComponent.Get(e)
		kept := inv.Items[:0]
		for _, it := range inv.Items {
			if it.Count > 0 {
				kept = append(kept, it)
			}
		}
		inv.Items = kept
	})
}

// endTurn advances the turn counter and checkpoints on the configured
// cadence. A checkpoint failure aborts the turn result; the previous
// on-disk snapshot stays intact.
func (g *Game) endTurn() error {
	g.turn++
	if g.persist != nil && g.tun.SnapshotEveryTurns > 0 && g.turn%uint64(g.tun.SnapshotEveryTurns) == 0 {
		if err := g.persist(g); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
	}
	return nil
}
