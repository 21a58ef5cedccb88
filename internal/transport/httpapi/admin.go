package httpapi

import (
	"net/http"
	"sort"

	"stagecraft.ai/internal/persistence/snapshot"
	"stagecraft.ai/internal/protocol"
)

// Admin surface: operational state and on-demand checkpoints. No auth; this
// listens on the same port and is meant to stay behind the deployment edge.

type adminRoomState struct {
	ID           string `json:"id"`
	User         string `json:"user"`
	Game         string `json:"game"`
	Turn         uint64 `json:"turn"`
	Started      bool   `json:"started"`
	CombatActive bool   `json:"combat_active"`
	LastSeq      uint64 `json:"last_seq"`
}

type adminStateResponse struct {
	Rooms         []adminRoomState `json:"rooms"`
	TurnsTotal    uint64           `json:"turns_total"`
	MessagesTotal uint64           `json:"messages_total"`
}

func (s *Server) handleAdminState(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()

	resp := adminStateResponse{
		Rooms:         []adminRoomState{},
		TurnsTotal:    s.turnsTotal.Load(),
		MessagesTotal: s.messagesTotal.Load(),
	}
	for _, room := range rooms {
		room.mu.Lock()
		resp.Rooms = append(resp.Rooms, adminRoomState{
			ID:           room.ID,
			User:         room.User,
			Game:         room.Game,
			Turn:         room.g.Turn(),
			Started:      room.g.Started(),
			CombatActive: room.g.CombatActive(),
			LastSeq:      room.g.Queue().LastSeq(),
		})
		room.mu.Unlock()
	}
	sort.Slice(resp.Rooms, func(i, j int) bool {
		a, b := resp.Rooms[i], resp.Rooms[j]
		if a.User != b.User {
			return a.User < b.User
		}
		return a.Game < b.Game
	})
	writeJSON(rw, resp)
}

type adminSnapshotResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Turn    uint64 `json:"turn,omitempty"`
}

// handleAdminSnapshot checkpoints a room immediately, outside the turn
// cadence.
func (s *Server) handleAdminSnapshot(rw http.ResponseWriter, r *http.Request) {
	req, ok := decode[protocol.LoginRequest](rw, r)
	if !ok {
		return
	}
	room, ok := s.room(req.User, req.Game)
	if !ok {
		writeJSON(rw, adminSnapshotResponse{Error: protocol.ErrNotLoggedIn, Message: "no such room"})
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	doc, err := room.g.ExportSnapshot()
	if err != nil {
		writeJSON(rw, adminSnapshotResponse{Error: protocol.ErrTurnFailed, Message: err.Error()})
		return
	}
	path := s.snapshotPath(room.User, room.Game)
	if err := snapshot.Write(path, doc); err != nil {
		writeJSON(rw, adminSnapshotResponse{Error: protocol.ErrTurnFailed, Message: err.Error()})
		return
	}
	s.index.RecordSnapshot(room.User, room.Game, room.g.Turn(), path, len(doc.Entities), len(doc.AgentsContext))
	writeJSON(rw, adminSnapshotResponse{Message: "snapshot written", Path: path, Turn: room.g.Turn()})
}
