package components

import (
	"encoding/json"
	"fmt"

	"github.com/yohamta/donburi"
)

// codec pairs a component type with a stable wire label so entities can be
// serialized component-by-component and rebuilt on restore.
type codec interface {
	label() string
	extract(e *donburi.Entry) (json.RawMessage, bool)
	apply(e *donburi.Entry, raw json.RawMessage) error
}

type typedCodec[T any] struct {
	name string
	ct   *donburi.ComponentType[T]
}

func (c typedCodec[T]) label() string { return c.name }

func (c typedCodec[T]) extract(e *donburi.Entry) (json.RawMessage, bool) {
	if !e.HasComponent(c.ct) {
		return nil, false
	}
	raw, err := json.Marshal(c.ct.Get(e))
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c typedCodec[T]) apply(e *donburi.Entry, raw json.RawMessage) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("component %s: %w", c.name, err)
	}
	donburi.Add(e, c.ct, &v)
	return nil
}

// registry order is fixed; restore applies components in this order so two
// restores of the same document build identical worlds.
var registry = []codec{
	typedCodec[Actor]{"actor", ActorComponent},
	typedCodec[Stage]{"stage", StageComponent},
	typedCodec[StageGraph]{"stage_graph", StageGraphComponent},
	typedCodec[StageEnvironment]{"stage_environment", StageEnvironmentComponent},
	typedCodec[WorldSystem]{"world_system", WorldSystemComponent},
	typedCodec[SystemPrompt]{"system_prompt", SystemPromptComponent},
	typedCodec[KickOff]{"kick_off", KickOffComponent},
	typedCodec[BaseForm]{"base_form", BaseFormComponent},
	typedCodec[Appearance]{"appearance", AppearanceComponent},
	typedCodec[Inventory]{"inventory", InventoryComponent},
	typedCodec[Attributes]{"attributes", AttributesComponent},
	typedCodec[RoundEvents]{"round_events", RoundEventsComponent},
	typedCodec[donburi.Tag]{"player", PlayerTag},
	typedCodec[donburi.Tag]{"kick_off_done", KickOffDoneTag},
	typedCodec[donburi.Tag]{"dungeon_stage", DungeonStageTag},
	typedCodec[donburi.Tag]{"death", DeathTag},
	typedCodec[donburi.Tag]{"combat_participant", CombatParticipantTag},
}

// Serialize dumps every registered component present on the entry, keyed by
// wire label.
func Serialize(e *donburi.Entry) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	for _, c := range registry {
		if raw, ok := c.extract(e); ok {
			out[c.label()] = raw
		}
	}
	return out
}

// Deserialize attaches the serialized components to a fresh entry. Unknown
// labels are an error: a snapshot written by a newer schema must not load
// silently.
func Deserialize(e *donburi.Entry, comps map[string]json.RawMessage) error {
	seen := 0
	for _, c := range registry {
		raw, ok := comps[c.label()]
		if !ok {
			continue
		}
		if err := c.apply(e, raw); err != nil {
			return err
		}
		seen++
	}
	if seen != len(comps) {
		for name := range comps {
			known := false
			for _, c := range registry {
				if c.label() == name {
					known = true
					break
				}
			}
			if !known {
				return fmt.Errorf("unknown component %q", name)
			}
		}
	}
	return nil
}

// EntityName returns the stable name of a principal entity, or "" when the
// entry carries none.
func EntityName(e *donburi.Entry) string {
	switch {
	case e.HasComponent(ActorComponent):
		return ActorComponent.Get(e).Name
	case e.HasComponent(StageComponent):
		return StageComponent.Get(e).Name
	case e.HasComponent(WorldSystemComponent):
		return WorldSystemComponent.Get(e).Name
	}
	return ""
}
