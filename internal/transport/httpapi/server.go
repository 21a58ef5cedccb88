// Package httpapi serves the player surface. Each (user, game) pair owns a
// room; the room's mutex serializes turn execution so the game core never
// sees concurrent access.
package httpapi

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	persistlog "stagecraft.ai/internal/persistence/log"
	"stagecraft.ai/internal/persistence/indexdb"
	"stagecraft.ai/internal/persistence/snapshot"
	"stagecraft.ai/internal/sim/game"
	"stagecraft.ai/internal/sim/scenario"
	"stagecraft.ai/internal/sim/session"
	"stagecraft.ai/internal/sim/tuning"
)

type Config struct {
	DataDir  string
	Scenario scenario.Definition
	Tuning   tuning.Tuning
}

type Server struct {
	cfg  Config
	chat game.ChatClient
	log  *log.Logger

	turns  *persistlog.TurnLogger
	events *persistlog.EventLogger
	index  *indexdb.SQLiteIndex

	mu    sync.Mutex
	rooms map[string]*Room

	turnsTotal    atomic.Uint64
	messagesTotal atomic.Uint64
}

// Stats is the /metrics view of the server.
type Stats struct {
	Rooms         int
	TurnsTotal    uint64
	MessagesTotal uint64
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	rooms := len(s.rooms)
	s.mu.Unlock()
	return Stats{
		Rooms:         rooms,
		TurnsTotal:    s.turnsTotal.Load(),
		MessagesTotal: s.messagesTotal.Load(),
	}
}

// Room wraps one game and serializes access to it.
type Room struct {
	ID   string
	User string
	Game string

	mu    sync.Mutex
	g     *game.Game
	input string
}

func NewServer(cfg Config, chat game.ChatClient, index *indexdb.SQLiteIndex, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:    cfg,
		chat:   chat,
		log:    logger,
		turns:  persistlog.NewTurnLogger(cfg.DataDir),
		events: persistlog.NewEventLogger(cfg.DataDir),
		index:  index,
		rooms:  map[string]*Room{},
	}
}

func (s *Server) Close() error {
	err := s.turns.Close()
	if err2 := s.events.Close(); err == nil {
		err = err2
	}
	return err
}

func roomKey(user, gameName string) string { return user + "/" + gameName }

func (s *Server) room(user, gameName string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomKey(user, gameName)]
	return r, ok
}

func (s *Server) snapshotPath(user, gameName string) string {
	return filepath.Join(s.cfg.DataDir, "games", user, gameName, "snapshot.json.zst")
}

// openRoom creates the room on first login, restoring the world from its
// latest snapshot when one exists.
func (s *Server) openRoom(user, gameName string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roomKey(user, gameName)
	if r, ok := s.rooms[key]; ok {
		return r, nil
	}

	g := game.New(user, gameName, s.chat, s.cfg.Tuning, s.log)
	path := s.snapshotPath(user, gameName)
	if snapshot.Exists(path) {
		doc, err := snapshot.Read(path)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", path, err)
		}
		if err := g.ImportSnapshot(doc); err != nil {
			return nil, fmt.Errorf("restore %s: %w", path, err)
		}
		s.log.Printf("room %s restored from %s (turn %d)", key, path, g.Turn())
	}
	g.OnPersist(func(g *game.Game) error {
		doc, err := g.ExportSnapshot()
		if err != nil {
			return err
		}
		if err := snapshot.Write(path, doc); err != nil {
			return err
		}
		s.index.RecordSnapshot(user, gameName, g.Turn(), path, len(doc.Entities), len(doc.AgentsContext))
		return nil
	})

	r := &Room{ID: uuid.NewString(), User: user, Game: gameName, g: g}
	s.rooms[key] = r
	return r, nil
}

// logTurn records the executed turn in the JSONL log and the sqlite index,
// along with every session message the turn produced.
func (s *Server) logTurn(r *Room, surface, input string, fromSeq uint64) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	entry := persistlog.TurnEntry{
		User:    r.User,
		Game:    r.Game,
		Turn:    r.g.Turn(),
		Surface: surface,
		Input:   input,
		LastSeq: r.g.Queue().LastSeq(),
		At:      now,
	}
	if err := s.turns.WriteTurn(entry); err != nil {
		s.log.Printf("turn log: %v", err)
	}
	s.index.WriteTurn(entry)
	s.turnsTotal.Add(1)
	for _, m := range r.g.Queue().Since(fromSeq) {
		s.messagesTotal.Add(1)
		if err := s.events.WriteEvent(persistlog.EventEntry{
			User: r.User, Game: r.Game, Turn: r.g.Turn(),
			Seq: m.Seq, Type: m.Type, Body: m.Body, At: now,
		}); err != nil {
			s.log.Printf("event log: %v", err)
		}
		s.index.WriteSessionMessage(r.User, r.Game, m)
	}
}

// SessionQueue exposes a room's feed queue to the websocket transport.
func (s *Server) SessionQueue(user, gameName string) (*session.Queue, bool) {
	r, ok := s.room(user, gameName)
	if !ok {
		return nil, false
	}
	return r.g.Queue(), true
}

// Handler returns the player surface routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /home/gameplay", s.handleHomeGameplay)
	mux.HandleFunc("POST /home/trans_dungeon", s.handleTransDungeon)
	mux.HandleFunc("POST /dungeon/gameplay", s.handleDungeonGameplay)
	mux.HandleFunc("POST /dungeon/trans_home", s.handleTransHome)
	mux.HandleFunc("GET /session_messages/{user}/{game}/since", s.handleSessionMessages)
	mux.HandleFunc("GET /stages/{user}/{game}/state", s.handleStagesState)
	mux.HandleFunc("GET /dungeons/{user}/{game}/state", s.handleDungeonState)
	mux.HandleFunc("GET /admin/v1/state", s.handleAdminState)
	mux.HandleFunc("POST /admin/v1/snapshot", s.handleAdminSnapshot)
	return mux
}
