package gametest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"

	"stagecraft.ai/internal/sim/game"
	"stagecraft.ai/internal/sim/tuning"
)

func exportBytes(t *testing.T, g *game.Game) []byte {
	t.Helper()
	doc, err := g.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestSnapshotRoundTripPreservesState(t *testing.T) {
	h := newHarness(t)
	h.chat.Script(bystander, `{"speak":["@`+player+`>remember_this"]}`)
	h.homeTurn("/speak --target=" + companion + " --content=checkpoint_now")

	doc, err := h.game.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	restored := game.New("tester", "fixture", newScriptedChat(), tuning.Defaults(), log.New(io.Discard, "", 0))
	if err := restored.ImportSnapshot(doc); err != nil {
		t.Fatalf("import: %v", err)
	}

	if restored.PlayerActor() != player || restored.Turn() != h.game.Turn() {
		t.Fatalf("identity lost: player=%q turn=%d", restored.PlayerActor(), restored.Turn())
	}
	if !reflect.DeepEqual(restored.StagesState(), h.game.StagesState()) {
		t.Fatalf("stage containment differs:\n%v\n%v", restored.StagesState(), h.game.StagesState())
	}
	if !reflect.DeepEqual(restored.Agents().Export(), h.game.Agents().Export()) {
		t.Fatal("agent memories differ after restore")
	}
	if !bytes.Equal(exportBytes(t, restored), exportBytes(t, h.game)) {
		t.Fatal("re-exported snapshot differs from the original")
	}
}

func TestSnapshotIsDeterministic(t *testing.T) {
	run := func() []byte {
		h := newHarness(t)
		h.chat.Script(bystander, `{"mind":["i_should_rest"]}`)
		h.homeTurn("/speak --target=" + companion + " --content=same_every_time")
		return exportBytes(t, h.game)
	}
	first := run()
	second := run()
	if !bytes.Equal(first, second) {
		t.Fatal("identical runs produced different snapshots")
	}
}

func TestImportRefusesLiveWorldAndBadSchema(t *testing.T) {
	h := newHarness(t)
	doc, err := h.game.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if err := h.game.ImportSnapshot(doc); err == nil {
		t.Fatal("import over a booted world must fail")
	}

	doc.SchemaVersion = "9.9.9"
	fresh := game.New("tester", "fixture", newScriptedChat(), tuning.Defaults(), log.New(io.Discard, "", 0))
	if err := fresh.ImportSnapshot(doc); err == nil {
		t.Fatal("unknown schema version must fail")
	}
}

func TestMidCombatSnapshotReArmsAtRedraw(t *testing.T) {
	h := newHarness(t)
	enterDungeon(t, h)
	h.chat.Script(player, `{"cards":[{"name":"Strike","target":"`+monster+`"}]}`)
	h.dungeonTurn("")

	doc, err := h.game.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Combat == nil || doc.Combat.Round != 1 {
		t.Fatalf("combat dump = %+v", doc.Combat)
	}

	chat := newScriptedChat()
	restored := game.New("tester", "fixture", chat, tuning.Defaults(), log.New(io.Discard, "", 0))
	if err := restored.ImportSnapshot(doc); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !restored.CombatActive() {
		t.Fatal("combat not re-armed after restore")
	}

	// Hands are not part of the snapshot; the first request after restore
	// draws them again.
	chat.Script(player, `{"cards":[{"name":"Strike","target":"`+monster+`"}]}`)
	if err := restored.RunDungeonTurn(context.Background(), ""); err != nil {
		t.Fatalf("redraw: %v", err)
	}
}

func TestCheckpointCadenceAndFailure(t *testing.T) {
	h := newHarness(t)
	var checkpoints int
	h.game.OnPersist(func(*game.Game) error {
		checkpoints++
		return nil
	})
	h.homeTurn("")
	h.homeTurn("")
	if checkpoints != 2 {
		t.Fatalf("checkpoints = %d, want one per turn", checkpoints)
	}

	h.game.OnPersist(func(*game.Game) error { return errors.New("disk full") })
	err := h.game.RunHomeTurn(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "checkpoint") {
		t.Fatalf("err = %v, want checkpoint failure", err)
	}
}
