package game

import (
	"fmt"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/components"
)

// Event variants and their visibility rules. Processors publish events;
// dispatch happens when the processor finishes and drains the queue, so no
// event can trigger another event inside the same dispatch.

const (
	kindSpeak             = "speak"
	kindWhisper           = "whisper"
	kindAnnounce          = "announce"
	kindMind              = "mind"
	kindTransStage        = "trans_stage"
	kindCombatArbitration = "combat_arbitration"
	kindCombatArchive     = "combat_archive"
)

type SpeakEvent struct {
	Actor   string
	Target  string
	Content string
}

type WhisperEvent struct {
	Actor   string
	Target  string
	Content string
}

type AnnounceEvent struct {
	Actor   string
	Stage   string
	Content string
}

type MindEvent struct {
	Actor   string
	Content string
}

// TransStageEvent carries the witness lists captured by the move routine:
// visibility spans both stages' occupants as they were around the move.
type TransStageEvent struct {
	Actor      string
	From       string
	To         string
	FromActors []string
	ToActors   []string
}

type CombatArbitrationEvent struct {
	Stage     string
	Log       string
	Narrative string
	// Aborted marks a round that exhausted its arbitration re-rolls.
	Aborted bool
}

type CombatArchiveEvent struct {
	Actor   string
	Summary string
}

var (
	speakEvents       = events.NewEventType[SpeakEvent]()
	whisperEvents     = events.NewEventType[WhisperEvent]()
	announceEvents    = events.NewEventType[AnnounceEvent]()
	mindEvents        = events.NewEventType[MindEvent]()
	transStageEvents  = events.NewEventType[TransStageEvent]()
	arbitrationEvents = events.NewEventType[CombatArbitrationEvent]()
	archiveEvents     = events.NewEventType[CombatArchiveEvent]()
)

func (g *Game) subscribeEvents() {
	speakEvents.Subscribe(g.world, func(_ donburi.World, e SpeakEvent) { g.onSpeak(e) })
	whisperEvents.Subscribe(g.world, func(_ donburi.World, e WhisperEvent) { g.onWhisper(e) })
	announceEvents.Subscribe(g.world, func(_ donburi.World, e AnnounceEvent) { g.onAnnounce(e) })
	mindEvents.Subscribe(g.world, func(_ donburi.World, e MindEvent) { g.onMind(e) })
	transStageEvents.Subscribe(g.world, func(_ donburi.World, e TransStageEvent) { g.onTransStage(e) })
	arbitrationEvents.Subscribe(g.world, func(_ donburi.World, e CombatArbitrationEvent) { g.onArbitration(e) })
	archiveEvents.Subscribe(g.world, func(_ donburi.World, e CombatArchiveEvent) { g.onArchive(e) })
}

// dispatchEvents drains the queued events. Called once at the end of each
// processor.
func (g *Game) dispatchEvents() {
	events.ProcessAllEvents(g.world)
}

func (g *Game) onSpeak(e SpeakEvent) {
	msg := fmt.Sprintf("%s says to %s: %s", e.Actor, e.Target, e.Content)
	ae, ok := g.actorEntry(e.Actor)
	if !ok {
		return
	}
	stage := components.ActorComponent.Get(ae).CurrentStage
	g.deliver(kindSpeak, msg, g.occupants(stage), protocol.AgentEventBody{
		Kind: kindSpeak, Actor: e.Actor, Target: e.Target, Message: msg,
	})
}

func (g *Game) onWhisper(e WhisperEvent) {
	msg := fmt.Sprintf("%s whispers to %s: %s", e.Actor, e.Target, e.Content)
	g.deliver(kindWhisper, msg, []string{e.Actor, e.Target}, protocol.AgentEventBody{
		Kind: kindWhisper, Actor: e.Actor, Target: e.Target, Message: msg,
	})
}

func (g *Game) onAnnounce(e AnnounceEvent) {
	msg := fmt.Sprintf("%s announces to everyone in %s: %s", e.Actor, e.Stage, e.Content)
	g.deliver(kindAnnounce, msg, g.occupants(e.Stage), protocol.AgentEventBody{
		Kind: kindAnnounce, Actor: e.Actor, Stage: e.Stage, Message: msg,
	})
}

func (g *Game) onMind(e MindEvent) {
	g.deliver(kindMind, e.Content, []string{e.Actor}, protocol.AgentEventBody{
		Kind: kindMind, Actor: e.Actor, Message: e.Content,
	})
}

func (g *Game) onTransStage(e TransStageEvent) {
	msg := fmt.Sprintf("%s moves from %s to %s.", e.Actor, e.From, e.To)
	recipients := append([]string{e.Actor}, e.FromActors...)
	recipients = append(recipients, e.ToActors...)
	g.deliver(kindTransStage, msg, recipients, protocol.AgentEventBody{
		Kind: kindTransStage, Actor: e.Actor, Stage: e.To, Message: msg,
	})
}

func (g *Game) onArbitration(e CombatArbitrationEvent) {
	msg := e.Narrative
	if e.Log != "" {
		msg = fmt.Sprintf("%s\n[combat log]\n%s", e.Narrative, e.Log)
	}
	var participants []string
	combatQuery.Each(g.world, func(entry *donburi.Entry) {
		a := components.ActorComponent.Get(entry)
		if a.CurrentStage == e.Stage {
			participants = append(participants, a.Name)
		}
	})
	g.deliver(kindCombatArbitration, msg, participants, protocol.AgentEventBody{
		Kind: kindCombatArbitration, Stage: e.Stage, Message: msg,
	})
}

func (g *Game) onArchive(e CombatArchiveEvent) {
	g.deliver(kindCombatArchive, e.Summary, []string{e.Actor}, protocol.AgentEventBody{
		Kind: kindCombatArchive, Actor: e.Actor, Message: e.Summary,
	})
}

// deliver appends the event message to each recipient's conversation log,
// records it into combat round logs where present, and mirrors it onto the
// session feed when the player is among the recipients.
func (g *Game) deliver(kind, msg string, recipients []string, body protocol.AgentEventBody) {
	seen := map[string]bool{}
	playerSaw := false
	for _, name := range recipients {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if g.agents.Has(name) {
			g.agents.AppendHuman(name, msg, map[string]string{"kind": kind})
		}
		if e, ok := g.actorEntry(name); ok && e.HasComponent(components.RoundEventsComponent) {
			re := components.RoundEventsComponent.Get(e)
			re.Events = append(re.Events, msg)
		}
		if name == g.player {
			playerSaw = true
		}
	}
	if playerSaw {
		g.queue.Append(protocol.SessionAgentEvent, body)
	}
}
