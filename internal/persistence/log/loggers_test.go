package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func readJSONL[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var out []T
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func onlyFile(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one log file, got %v", entries)
	}
	return filepath.Join(dir, entries[0].Name())
}

func TestTurnLoggerWritesReadableJSONL(t *testing.T) {
	dataDir := t.TempDir()
	l := NewTurnLogger(dataDir)

	entries := []TurnEntry{
		{User: "u", Game: "g", Turn: 1, Surface: "home", Input: "/quit", LastSeq: 3, At: "2026-01-01T00:00:00Z"},
		{User: "u", Game: "g", Turn: 2, Surface: "dungeon", LastSeq: 7, At: "2026-01-01T00:01:00Z"},
	}
	for _, e := range entries {
		if err := l.WriteTurn(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := readJSONL[TurnEntry](t, onlyFile(t, filepath.Join(dataDir, "turns")))
	if len(got) != 2 || got[0] != entries[0] || got[1] != entries[1] {
		t.Fatalf("read back %+v", got)
	}
}

func TestEventLoggerPreservesRawBody(t *testing.T) {
	dataDir := t.TempDir()
	l := NewEventLogger(dataDir)

	in := EventEntry{
		User: "u", Game: "g", Turn: 1, Seq: 5, Type: "AGENT_EVENT",
		Body: json.RawMessage(`{"kind":"speak","message":"hi"}`),
		At:   "2026-01-01T00:00:00Z",
	}
	if err := l.WriteEvent(in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := readJSONL[EventEntry](t, onlyFile(t, filepath.Join(dataDir, "events")))
	if len(got) != 1 || got[0].Seq != 5 || string(got[0].Body) != string(in.Body) {
		t.Fatalf("read back %+v", got)
	}
}
