package game

import (
	"context"
	"sort"

	"github.com/yohamta/donburi"

	"stagecraft.ai/internal/chatpool"
	"stagecraft.ai/internal/sim/action"
	"stagecraft.ai/internal/sim/components"
)

// runKickoff introduces every entity still carrying its first-turn flag to
// its agent: the system prompt is installed, the kickoff message sent, and
// the first reply parsed for a baseline appearance or environment.
func (g *Game) runKickoff(ctx context.Context) error {
	type pending struct {
		entry *donburi.Entry
		name  string
	}
	var targets []pending
	kickOffQuery.Each(g.world, func(e *donburi.Entry) {
		if e.HasComponent(components.KickOffDoneTag) {
			return
		}
		if name := components.EntityName(e); name != "" {
			targets = append(targets, pending{e, name})
		}
	})
	if len(targets) == 0 {
		return nil
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].name < targets[j].name })

	handlers := make([]*chatpool.Handler, len(targets))
	for i, t := range targets {
		system := ""
		if t.entry.HasComponent(components.SystemPromptComponent) {
			system = components.SystemPromptComponent.Get(t.entry).Content
		}
		if !g.agents.Initialized(t.name) {
			if err := g.agents.Initialize(t.name, system); err != nil {
				return err
			}
		}
		content := components.KickOffComponent.Get(t.entry).Content
		var user string
		if t.entry.HasComponent(components.StageComponent) {
			user = kickoffStagePrompt(content)
		} else {
			user = kickoffActorPrompt(content)
		}
		handlers[i] = &chatpool.Handler{
			AgentName:    t.name,
			SystemPrompt: g.agents.SystemPrompt(t.name),
			Context:      g.agents.Context(t.name),
			UserMessage:  user,
		}
	}

	g.chat.Gather(ctx, handlers)

	for i, t := range targets {
		h := handlers[i]
		if !h.Failed() {
			g.agents.AppendHuman(t.name, h.UserMessage, map[string]string{"kind": "kick_off"})
			g.agents.AppendAI(t.name, h.Reply, nil)
			g.applyKickoffReply(t.entry, t.name, h.Reply)
		} else {
			g.log.Printf("game %s/%s: kickoff for %s failed: %v", g.User, g.Name, t.name, h.Err)
		}
		t.entry.RemoveComponent(components.KickOffComponent)
		t.entry.AddComponent(components.KickOffDoneTag)
	}
	g.dispatchEvents()
	return nil
}

func (g *Game) applyKickoffReply(e *donburi.Entry, name, reply string) {
	plan, err := action.ParsePlan(reply)
	if err != nil {
		// A prose-only first reply is tolerated; the agent simply starts with
		// no baseline action.
		return
	}
	switch {
	case e.HasComponent(components.StageComponent):
		if plan.Environment != "" {
			env := components.StageEnvironmentComponent.Get(e)
			env.Narrative = plan.Environment
		}
		for _, text := range plan.Announce {
			announceEvents.Publish(g.world, AnnounceEvent{Actor: name, Stage: name, Content: text})
		}
	case e.HasComponent(components.ActorComponent):
		appearance := plan.Appearance
		if appearance == "" && e.HasComponent(components.BaseFormComponent) {
			appearance = components.BaseFormComponent.Get(e).Description
		}
		if appearance != "" {
			donburi.Add(e, components.AppearanceComponent, &components.Appearance{Description: appearance})
		}
		for _, text := range plan.Mind {
			mindEvents.Publish(g.world, MindEvent{Actor: name, Content: text})
		}
	}
}
