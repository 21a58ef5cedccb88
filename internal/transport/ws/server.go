// Package ws streams a game's session feed over a websocket: backlog first,
// then live messages as turns append them.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/session"
)

// QueueLookup resolves a (user, game) pair to its session queue.
type QueueLookup func(user, game string) (*session.Queue, bool)

type Server struct {
	lookup QueueLookup
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(lookup QueueLookup, logger *log.Logger) *Server {
	return &Server{
		lookup: lookup,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Handler serves GET /ws/{user}/{game}?last_sequence_id=N.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		user, game := r.PathValue("user"), r.PathValue("game")
		q, ok := s.lookup(user, game)
		if !ok {
			http.Error(rw, "unknown game", http.StatusNotFound)
			return
		}
		last, _ := strconv.ParseUint(r.URL.Query().Get("last_sequence_id"), 10, 64)

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, m := range q.Since(last) {
			if err := writeJSON(conn, m); err != nil {
				return
			}
			last = m.Seq
		}

		live := q.Subscribe(64)
		defer q.Unsubscribe(live)

		// Reader goroutine: the client sends nothing meaningful; a read error
		// means the peer went away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-done:
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case m, ok := <-live:
				if !ok {
					return
				}
				// A dropped notification shows up as a gap; backfill from the
				// queue so the client still sees a dense sequence.
				if m.Seq > last+1 {
					for _, missed := range q.Since(last) {
						if missed.Seq >= m.Seq {
							break
						}
						if err := writeJSON(conn, missed); err != nil {
							return
						}
						last = missed.Seq
					}
				}
				if m.Seq <= last {
					continue
				}
				if err := writeJSON(conn, m); err != nil {
					return
				}
				last = m.Seq
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v protocol.SessionMessage) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
