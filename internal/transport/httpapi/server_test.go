package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"stagecraft.ai/internal/chatpool"
	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/scenario"
	"stagecraft.ai/internal/sim/tuning"
)

// emptyPlanChat answers every agent with the empty plan object, which is a
// valid reply for kickoff, planning, and stage updates.
type emptyPlanChat struct{}

func (emptyPlanChat) Gather(_ context.Context, handlers []*chatpool.Handler) {
	for _, h := range handlers {
		h.Reply = "{}"
	}
}

func testScenario() scenario.Definition {
	return scenario.Definition{
		Stages: []scenario.Stage{
			{Name: "Camp", Next: []string{}},
			{Name: "Cave", Dungeon: true},
		},
		Actors: []scenario.Actor{
			{Name: "Warrior", Stage: "Camp", MaxHP: 60},
			{Name: "Mage", Stage: "Camp", MaxHP: 40},
			{Name: "Goblin", Stage: "Cave", MaxHP: 20},
		},
		Dungeon: []string{"Cave"},
	}
}

func newTestServer(t *testing.T, dataDir string) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(Config{
		DataDir:  dataDir,
		Scenario: testScenario(),
		Tuning:   tuning.Defaults(),
	}, emptyPlanChat{}, nil, log.New(io.Discard, "", 0))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func TestPlayerSurfaceFlow(t *testing.T) {
	dataDir := t.TempDir()
	srv, ts := newTestServer(t, dataDir)
	client := ts.Client()

	doPost := func(path string, body any, out any) {
		t.Helper()
		raw, _ := json.Marshal(body)
		resp, err := client.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	doGet := func(path string, out any) {
		t.Helper()
		resp, err := client.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}

	// Start before login is refused.
	var start protocol.StartResponse
	doPost("/start", protocol.StartRequest{User: "u", Game: "g", Actor: "Warrior"}, &start)
	if start.Error != protocol.ErrNotLoggedIn {
		t.Fatalf("start before login: %+v", start)
	}

	// Login validates its fields.
	var login protocol.LoginResponse
	doPost("/login", protocol.LoginRequest{User: "u"}, &login)
	if login.Error != protocol.ErrNoGame {
		t.Fatalf("login without game: %+v", login)
	}
	doPost("/login", protocol.LoginRequest{User: "u", Game: "g"}, &login)
	if login.Error != protocol.ErrNone {
		t.Fatalf("login: %+v", login)
	}

	// Gameplay before start is refused.
	var play protocol.GameplayResponse
	doPost("/home/gameplay", protocol.GameplayRequest{User: "u", Game: "g"}, &play)
	if play.Error != protocol.ErrGameNotStarted {
		t.Fatalf("gameplay before start: %+v", play)
	}

	// Start boots the scenario, binds the player, and returns the feed tail.
	doPost("/start", protocol.StartRequest{User: "u", Game: "g", Actor: "Warrior"}, &start)
	if start.Error != protocol.ErrNone || len(start.Messages) == 0 {
		t.Fatalf("start: %+v", start)
	}

	// Binding a second actor is a state error.
	doPost("/start", protocol.StartRequest{User: "u", Game: "g", Actor: "Mage"}, &start)
	if start.Error != protocol.ErrNone || start.Message != "resumed" {
		t.Fatalf("second start: %+v", start)
	}

	// One speech turn; the reply carries the new feed entries.
	doPost("/home/gameplay", protocol.GameplayRequest{
		User: "u", Game: "g", Input: "/speak --target=Mage --content=onward",
	}, &play)
	if play.Error != protocol.ErrNone {
		t.Fatalf("gameplay: %+v", play)
	}
	sawEvent := false
	for _, m := range play.Messages {
		if m.Type == protocol.SessionAgentEvent {
			sawEvent = true
		}
	}
	if !sawEvent {
		t.Fatalf("no agent event in turn reply: %+v", play.Messages)
	}

	// Invalid input fails the turn without advancing it.
	doPost("/home/gameplay", protocol.GameplayRequest{
		User: "u", Game: "g", Input: "/speak --target=Nobody --content=hm",
	}, &play)
	if play.Error != protocol.ErrTurnFailed {
		t.Fatalf("bad target: %+v", play)
	}

	// Read endpoints.
	var stages protocol.StagesStateResponse
	doGet("/stages/u/g/state", &stages)
	if len(stages.Stages["Camp"]) != 2 {
		t.Fatalf("stages: %+v", stages.Stages)
	}
	var dungeon protocol.DungeonStateResponse
	doGet("/dungeons/u/g/state", &dungeon)
	if len(dungeon.Dungeon.Levels) != 1 || dungeon.Dungeon.Cursor != 0 {
		t.Fatalf("dungeon: %+v", dungeon.Dungeon)
	}
	var feed protocol.SessionFeedResponse
	doGet("/session_messages/u/g/since?last_sequence_id=0", &feed)
	if len(feed.Messages) == 0 {
		t.Fatalf("empty feed")
	}
	high := feed.Messages[len(feed.Messages)-1].Seq
	doGet("/session_messages/u/g/since?last_sequence_id="+strconv.FormatUint(high, 10), &feed)
	if len(feed.Messages) != 0 {
		t.Fatalf("feed past the tail: %+v", feed.Messages)
	}

	// Admin surface.
	var admin adminStateResponse
	doGet("/admin/v1/state", &admin)
	if len(admin.Rooms) != 1 || admin.Rooms[0].User != "u" || !admin.Rooms[0].Started {
		t.Fatalf("admin state: %+v", admin)
	}
	var snap adminSnapshotResponse
	doPost("/admin/v1/snapshot", protocol.LoginRequest{User: "u", Game: "g"}, &snap)
	if snap.Error != protocol.ErrNone || snap.Path == "" {
		t.Fatalf("admin snapshot: %+v", snap)
	}

	// The successful turn checkpointed the world.
	if _, err := os.Stat(filepath.Join(dataDir, "games", "u", "g", "snapshot.json.zst")); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if stats := srv.Stats(); stats.Rooms != 1 || stats.TurnsTotal == 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestRoomRestoresFromSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	_, ts := newTestServer(t, dataDir)
	client := ts.Client()

	doPost := func(path string, body any, out any) {
		t.Helper()
		raw, _ := json.Marshal(body)
		resp, err := client.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}

	var login protocol.LoginResponse
	doPost("/login", protocol.LoginRequest{User: "u", Game: "g"}, &login)
	var start protocol.StartResponse
	doPost("/start", protocol.StartRequest{User: "u", Game: "g", Actor: "Warrior"}, &start)
	var play protocol.GameplayResponse
	doPost("/home/gameplay", protocol.GameplayRequest{User: "u", Game: "g", Input: ""}, &play)
	if play.Error != protocol.ErrNone {
		t.Fatalf("gameplay: %+v", play)
	}

	// A second server instance over the same data directory picks the game
	// up where it left off.
	_, ts2 := newTestServer(t, dataDir)
	client2 := ts2.Client()
	doPost2 := func(path string, body any, out any) {
		t.Helper()
		raw, _ := json.Marshal(body)
		resp, err := client2.Post(ts2.URL+path, "application/json", bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}

	doPost2("/login", protocol.LoginRequest{User: "u", Game: "g"}, &login)
	if login.Error != protocol.ErrNone {
		t.Fatalf("relogin: %+v", login)
	}
	doPost2("/start", protocol.StartRequest{User: "u", Game: "g", Actor: "Warrior"}, &start)
	if start.Error != protocol.ErrNone || start.Message != "resumed" {
		t.Fatalf("resume: %+v", start)
	}
}
