package gametest

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"stagecraft.ai/internal/protocol"
)

func enterDungeon(t *testing.T, h *harness) {
	t.Helper()
	if err := h.game.TransDungeon(); err != nil {
		t.Fatalf("trans dungeon: %v", err)
	}
	if !h.game.CombatActive() {
		t.Fatal("combat not armed after entering the dungeon")
	}
}

// latestCombatState decodes the newest COMBAT_STATE entry on the feed.
func latestCombatState(t *testing.T, h *harness) map[string]any {
	t.Helper()
	var raw json.RawMessage
	for _, m := range h.game.Queue().Since(0) {
		if m.Type == protocol.SessionCombatState {
			raw = m.Body
		}
	}
	if raw == nil {
		t.Fatal("no combat state on the feed")
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	return body
}

func TestCombatVictoryClearsTheLevel(t *testing.T) {
	h := newHarness(t)
	enterDungeon(t, h)

	// Opening draw. The bystander's worker is down and simply holds no
	// cards this round.
	h.chat.Script(player, `{"cards":[{"name":"Strike","target":"`+monster+`"},{"name":"Guard"}]}`)
	h.chat.Script(companion, `{"cards":[{"name":"Arrow","target":"`+monster+`"}]}`)
	h.chat.Script(monster, `{"cards":[{"name":"Bite","target":"`+player+`"}]}`)
	h.chat.Fail(bystander)
	h.dungeonTurn("")

	state := latestCombatState(t, h)
	if state["phase"] != "choosing" {
		t.Fatalf("phase = %v, want choosing", state["phase"])
	}
	hand, _ := state["hand"].([]any)
	if len(hand) != 2 || hand[0] != "Strike" {
		t.Fatalf("player hand = %v", hand)
	}

	// Round resolution: the monster's full HP arrives as damage, so the
	// defenders fall and the level clears.
	h.chat.Script(companion, `{"card":"Arrow","target":"`+monster+`"}`)
	h.chat.Script(monster, `{"card":"Bite","target":"`+player+`"}`)
	h.chat.Script(dungeonStage, `{"narrative":"steel_meets_hide","damage":{"`+monster+`":20,"`+player+`":3}}`)
	h.dungeonTurn("/play_card --card=Strike --target=" + monster)

	if h.game.CombatActive() {
		t.Fatal("combat still active after the defenders fell")
	}
	if !h.isDead(monster) {
		t.Fatal("monster survived lethal damage")
	}
	if got := h.attrs(player).HP; got != 57 {
		t.Fatalf("player HP = %d, want 57", got)
	}
	if !h.game.Dungeon().Cleared() {
		t.Fatalf("dungeon not cleared: %+v", h.game.Dungeon().State())
	}

	// The combat archive reached every participant as durable memory.
	for _, name := range []string{player, companion, bystander, monster} {
		if kinds := h.eventKinds(name); kinds["combat_archive"] != 1 {
			t.Fatalf("%s archive events = %v, want exactly 1", name, kinds)
		}
	}

	// The survivors walk home; the corpse stays behind.
	if err := h.game.TransHome(); err != nil {
		t.Fatalf("trans home: %v", err)
	}
	stages := h.game.StagesState()
	if len(stages[homeStage]) != 3 {
		t.Fatalf("home occupants = %v", stages[homeStage])
	}
	if len(stages[dungeonStage]) != 1 || stages[dungeonStage][0] != monster {
		t.Fatalf("dungeon occupants = %v", stages[dungeonStage])
	}
}

func TestArbitrationRerollExhaustionAbortsWithoutDamage(t *testing.T) {
	h := newHarness(t)
	enterDungeon(t, h)

	h.chat.Script(player, `{"cards":[{"name":"Strike","target":"`+monster+`"}]}`)
	h.dungeonTurn("")

	// The director never produces a valid verdict; the default empty object
	// fails the verdict contract on every re-roll.
	directorCallsBefore := h.chat.Calls(dungeonStage)
	monsterHP := h.attrs(monster).HP
	playerHP := h.attrs(player).HP

	h.dungeonTurn("/play_card --card=Strike --target=" + monster)

	if got := h.chat.Calls(dungeonStage) - directorCallsBefore; got != 3 {
		t.Fatalf("director was asked %d times, want the full re-roll budget of 3", got)
	}
	if h.game.CombatActive() {
		t.Fatal("combat still active after an aborted round")
	}
	if h.attrs(monster).HP != monsterHP || h.attrs(player).HP != playerHP {
		t.Fatal("an unresolved round changed HP")
	}
	if h.game.Dungeon().Cleared() || h.game.Dungeon().State().Defeated {
		t.Fatal("an aborted fight resolved the dungeon level")
	}
	aborted := false
	for _, m := range h.game.Agents().Snapshot(player) {
		if strings.Contains(m.Content, "Combat was interrupted") {
			aborted = true
		}
	}
	if !aborted {
		t.Fatal("no abort archive in the player's memory")
	}
}

func TestPartyDefeatEndsTheRun(t *testing.T) {
	h := newHarness(t)
	enterDungeon(t, h)

	h.chat.Script(player, `{"cards":[{"name":"Flail"}]}`)
	h.dungeonTurn("")

	// Everything the party has arrives as damage.
	h.chat.Script(dungeonStage, `{"narrative":"overrun","damage":{"`+player+`":60,"`+companion+`":40,"`+bystander+`":40}}`)
	h.dungeonTurn("/play_card --card=Flail")

	if h.game.CombatActive() {
		t.Fatal("combat still active after the party fell")
	}
	if !h.game.Dungeon().State().Defeated {
		t.Fatal("dungeon run not marked defeated")
	}
	if _, ok := h.game.Dungeon().Current(); ok {
		t.Fatal("defeated run still offers a level")
	}
	if err := h.game.TransDungeon(); err == nil {
		t.Fatal("expected re-entry into a defeated run to fail")
	}
}

func TestPlayedCardMustBeInHand(t *testing.T) {
	h := newHarness(t)
	enterDungeon(t, h)

	h.chat.Script(player, `{"cards":[{"name":"Strike"}]}`)
	h.dungeonTurn("")

	err := h.game.RunDungeonTurn(context.Background(), "/play_card --card=Excalibur")
	if err == nil || !strings.Contains(err.Error(), "not in your hand") {
		t.Fatalf("err = %v, want hand rejection", err)
	}
	// The round is still waiting for a valid play.
	h.chat.Script(dungeonStage, `{"narrative":"a_glancing_blow","damage":{"`+player+`":1}}`)
	h.dungeonTurn("/play_card --card=Strike")
	if got := h.attrs(player).HP; got != 59 {
		t.Fatalf("player HP = %d, want 59", got)
	}
}

func TestSurfaceGuards(t *testing.T) {
	h := newHarness(t)

	if err := h.game.RunDungeonTurn(context.Background(), ""); err == nil {
		t.Fatal("dungeon turn accepted outside combat")
	}
	enterDungeon(t, h)
	if err := h.game.RunHomeTurn(context.Background(), ""); err == nil {
		t.Fatal("home turn accepted during combat")
	}
	if err := h.game.TransDungeon(); err == nil {
		t.Fatal("re-entry accepted during combat")
	}
	if err := h.game.TransHome(); err == nil {
		t.Fatal("retreat accepted during combat")
	}
}
