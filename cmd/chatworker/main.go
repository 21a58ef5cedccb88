// Command chatworker is a stateless stand-in for a real LLM worker. It
// speaks the chat endpoint protocol and answers every prompt kind with a
// minimal well-formed reply, which makes it possible to run the server end
// to end without any model behind it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"stagecraft.ai/internal/protocol"
)

func main() {
	var (
		addr  = flag.String("addr", ":9001", "http listen address")
		delay = flag.Duration("delay", 0, "artificial completion latency")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[chatworker] ", log.LstdFlags|log.Lmicroseconds)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", func(rw http.ResponseWriter, r *http.Request) {
		var req protocol.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		if *delay > 0 {
			time.Sleep(*delay)
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(protocol.ChatResponse{
			Messages: []protocol.ReplyMessage{{Role: protocol.RoleAI, Content: reply(req)}},
		})
	})
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})

	logger.Printf("listening on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// reply keys off the contract stated in the prompt and returns the smallest
// valid answer for it.
func reply(req protocol.ChatRequest) string {
	u := req.UserMessage
	switch {
	case strings.Contains(u, `{"cards"`):
		return `{"cards": [{"name": "Strike", "target": "", "reason": "A plain attack."}]}`
	case strings.Contains(u, `{"card"`):
		return `{"card": "Strike", "target": ""}`
	case strings.Contains(u, `"narrative"`):
		return `{"narrative": "Blows are traded; nobody lands anything decisive.", "damage": {}, "effects": {}}`
	case strings.Contains(u, `"environment"`):
		return `{"environment": "Nothing has visibly changed."}`
	case strings.Contains(u, `"speak"`):
		return `{"mind": ["I wait and watch."]}`
	}
	return fmt.Sprintf("I have nothing to add. (context: %d messages)", len(req.Context))
}
