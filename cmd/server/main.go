package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stagecraft.ai/internal/chatpool"
	"stagecraft.ai/internal/persistence/indexdb"
	"stagecraft.ai/internal/sim/scenario"
	"stagecraft.ai/internal/sim/tuning"
	"stagecraft.ai/internal/transport/httpapi"
	"stagecraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		configDir    = flag.String("configs", "./configs", "config directory")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenarioPath = flag.String("scenario", "", "path to scenario.yaml (default: built-in demo world)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite read-model index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if len(tune.ChatEndpoints) == 0 {
		logger.Fatalf("tuning: no chat_endpoints configured")
	}

	sc := scenario.Default()
	if sp := strings.TrimSpace(*scenarioPath); sp != "" {
		sc, err = scenario.Load(sp)
		if err != nil {
			logger.Fatalf("load scenario: %v", err)
		}
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	pool, err := chatpool.New(tune.ChatEndpoints, chatpool.Options{
		Timeout:     time.Duration(tune.ChatTimeoutMs) * time.Millisecond,
		MaxRetries:  uint64(tune.ChatMaxRetries),
		BackoffBase: time.Duration(tune.ChatBackoffBaseMs) * time.Millisecond,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("chat pool: %v", err)
	}

	api := httpapi.NewServer(httpapi.Config{
		DataDir:  *dataDir,
		Scenario: sc,
		Tuning:   tune,
	}, pool, idx, logger)
	defer api.Close()

	feed := ws.NewServer(api.SessionQueue, logger)

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.HandleFunc("GET /ws/{user}/{game}", feed.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := api.Stats()
		fmt.Fprintf(rw, "# HELP stagecraft_rooms Open rooms.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_rooms gauge\n")
		fmt.Fprintf(rw, "stagecraft_rooms %d\n", st.Rooms)
		fmt.Fprintf(rw, "# HELP stagecraft_turns_total Turns executed.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_turns_total counter\n")
		fmt.Fprintf(rw, "stagecraft_turns_total %d\n", st.TurnsTotal)
		fmt.Fprintf(rw, "# HELP stagecraft_session_messages_total Session messages appended.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_session_messages_total counter\n")
		fmt.Fprintf(rw, "stagecraft_session_messages_total %d\n", st.MessagesTotal)
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (workers: %d)", *addr, pool.Size())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
