package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"stagecraft.ai/internal/protocol"
)

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func decode[T any](rw http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(rw, "bad request body", http.StatusBadRequest)
		return v, false
	}
	return v, true
}

func (s *Server) handleLogin(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.LoginRequest](rw, r)
	if !ok {
		return
	}
	if req.User == "" || req.Game == "" {
		writeJSON(rw, protocol.LoginResponse{Error: protocol.ErrNoGame, Message: "user and game are required"})
		return
	}
	room, err := s.openRoom(req.User, req.Game)
	if err != nil {
		s.log.Printf("login %s/%s: %v", req.User, req.Game, err)
		writeJSON(rw, protocol.LoginResponse{Error: protocol.ErrTurnFailed, Message: err.Error()})
		return
	}
	writeJSON(rw, protocol.LoginResponse{Message: "room " + room.ID})
}

func (s *Server) handleStart(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.StartRequest](rw, r)
	if !ok {
		return
	}
	room, ok := s.room(req.User, req.Game)
	if !ok {
		writeJSON(rw, protocol.StartResponse{Error: protocol.ErrNotLoggedIn, Message: "login first"})
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	from := room.g.Queue().LastSeq()
	if room.g.Started() {
		// Restored game: the player is already bound; just hand back the feed.
		writeJSON(rw, protocol.StartResponse{
			Message:  "resumed",
			Messages: room.g.Queue().Since(from),
		})
		return
	}
	if len(room.g.Agents().Agents()) == 0 {
		if err := room.g.Boot(s.cfg.Scenario); err != nil {
			writeJSON(rw, protocol.StartResponse{Error: protocol.ErrTurnFailed, Message: err.Error()})
			return
		}
	}
	if err := room.g.Start(r.Context(), req.Actor); err != nil {
		writeJSON(rw, protocol.StartResponse{Error: protocol.ErrWrongState, Message: err.Error()})
		return
	}
	s.logTurn(room, "start", "", from)
	writeJSON(rw, protocol.StartResponse{
		Message:  "started",
		Messages: room.g.Queue().Since(from),
	})
}

// runTurn is the shared body of the gameplay and transition handlers.
func (s *Server) runTurn(rw http.ResponseWriter, r *http.Request, surface string, run func(*Room) error) {
	req, ok := decode[protocol.GameplayRequest](rw, r)
	if !ok {
		return
	}
	room, ok := s.room(req.User, req.Game)
	if !ok {
		writeJSON(rw, protocol.GameplayResponse{Error: protocol.ErrNotLoggedIn, Message: "login first"})
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.g.Started() {
		writeJSON(rw, protocol.GameplayResponse{Error: protocol.ErrGameNotStarted, Message: "start first"})
		return
	}
	from := room.g.Queue().LastSeq()
	room.input = req.Input
	if err := run(room); err != nil {
		writeJSON(rw, protocol.GameplayResponse{Error: protocol.ErrTurnFailed, Message: err.Error()})
		return
	}
	s.logTurn(room, surface, req.Input, from)
	writeJSON(rw, protocol.GameplayResponse{
		Message:  "ok",
		Messages: room.g.Queue().Since(from),
	})
}

func (s *Server) handleHomeGameplay(rw http.ResponseWriter, r *http.Request) {
	s.runTurn(rw, r, "home", func(room *Room) error {
		return room.g.RunHomeTurn(r.Context(), room.input)
	})
}

func (s *Server) handleDungeonGameplay(rw http.ResponseWriter, r *http.Request) {
	s.runTurn(rw, r, "dungeon", func(room *Room) error {
		return room.g.RunDungeonTurn(r.Context(), room.input)
	})
}

func (s *Server) handleTransDungeon(rw http.ResponseWriter, r *http.Request) {
	s.runTurn(rw, r, "trans_dungeon", func(room *Room) error {
		return room.g.TransDungeon()
	})
}

func (s *Server) handleTransHome(rw http.ResponseWriter, r *http.Request) {
	s.runTurn(rw, r, "trans_home", func(room *Room) error {
		return room.g.TransHome()
	})
}

func (s *Server) handleSessionMessages(rw http.ResponseWriter, r *http.Request) {
	room, ok := s.room(r.PathValue("user"), r.PathValue("game"))
	if !ok {
		writeJSON(rw, protocol.SessionFeedResponse{Error: protocol.ErrNotLoggedIn, Message: "login first"})
		return
	}
	last, _ := strconv.ParseUint(r.URL.Query().Get("last_sequence_id"), 10, 64)
	room.mu.Lock()
	msgs := room.g.Queue().Since(last)
	room.mu.Unlock()
	writeJSON(rw, protocol.SessionFeedResponse{Messages: msgs})
}

func (s *Server) handleStagesState(rw http.ResponseWriter, r *http.Request) {
	room, ok := s.room(r.PathValue("user"), r.PathValue("game"))
	if !ok {
		writeJSON(rw, protocol.StagesStateResponse{Error: protocol.ErrNotLoggedIn, Message: "login first"})
		return
	}
	room.mu.Lock()
	stages := room.g.StagesState()
	room.mu.Unlock()
	writeJSON(rw, protocol.StagesStateResponse{Stages: stages})
}

func (s *Server) handleDungeonState(rw http.ResponseWriter, r *http.Request) {
	room, ok := s.room(r.PathValue("user"), r.PathValue("game"))
	if !ok {
		writeJSON(rw, protocol.DungeonStateResponse{Error: protocol.ErrNotLoggedIn, Message: "login first"})
		return
	}
	room.mu.Lock()
	resp := protocol.DungeonStateResponse{
		Stages:  room.g.StagesState(),
		Dungeon: room.g.Dungeon().State(),
	}
	room.mu.Unlock()
	writeJSON(rw, resp)
}
