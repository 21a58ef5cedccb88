// Package indexdb maintains a sqlite read model over the JSONL logs: turns,
// session messages, and snapshot locations, queryable without decompressing
// anything. Writes go through a single goroutine; the channel drops under
// pressure because the JSONL logs remain the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"stagecraft.ai/internal/persistence/log"
	"stagecraft.ai/internal/protocol"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTurn reqKind = iota + 1
	reqMessage
	reqSnapshot
)

type req struct {
	kind reqKind

	turn     log.TurnEntry
	message  messageRow
	snapshot snapshotRow
}

type messageRow struct {
	User string
	Game string
	Msg  protocol.SessionMessage
}

type snapshotRow struct {
	User     string
	Game     string
	Turn     uint64
	Path     string
	Entities int
	Agents   int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			user TEXT NOT NULL,
			game TEXT NOT NULL,
			turn INTEGER NOT NULL,
			surface TEXT NOT NULL,
			input TEXT,
			last_seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (user, game, turn, surface)
		);`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			user TEXT NOT NULL,
			game TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (user, game, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_type ON session_messages(user, game, type);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			user TEXT NOT NULL,
			game TEXT NOT NULL,
			turn INTEGER NOT NULL,
			path TEXT NOT NULL,
			entities INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			PRIMARY KEY (user, game, turn)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTurn(entry log.TurnEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTurn, turn: entry}:
	default:
	}
}

func (s *SQLiteIndex) WriteSessionMessage(user, game string, msg protocol.SessionMessage) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqMessage, message: messageRow{User: user, Game: game, Msg: msg}}:
	default:
	}
}

func (s *SQLiteIndex) RecordSnapshot(user, game string, turn uint64, path string, entities, agents int) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: snapshotRow{
		User: user, Game: game, Turn: turn, Path: path, Entities: entities, Agents: agents,
	}}:
	default:
	}
}

// LatestSnapshot returns the newest recorded snapshot path for the game, or
// "" when none exists. Reads run on the caller's goroutine; sqlite in WAL
// mode handles the concurrent reader.
func (s *SQLiteIndex) LatestSnapshot(user, game string) (string, uint64, error) {
	row := s.db.QueryRow(
		`SELECT path, turn FROM snapshots WHERE user=? AND game=? ORDER BY turn DESC LIMIT 1`,
		user, game,
	)
	var path string
	var turn uint64
	if err := row.Scan(&path, &turn); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, nil
		}
		return "", 0, err
	}
	return path, turn, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTurn, _ := s.db.Prepare(`INSERT OR REPLACE INTO turns(user,game,turn,surface,input,last_seq,at) VALUES(?,?,?,?,?,?,?)`)
	insertMessage, _ := s.db.Prepare(`INSERT OR REPLACE INTO session_messages(user,game,seq,type,body) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(user,game,turn,path,entities,agents) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertTurn != nil {
			_ = insertTurn.Close()
		}
		if insertMessage != nil {
			_ = insertMessage.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
	}
	defer commit()

	flushTimer := time.NewTicker(500 * time.Millisecond)
	defer flushTimer.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				return
			}
			begin()
			if tx == nil {
				continue
			}
			switch r.kind {
			case reqTurn:
				t := r.turn
				_, _ = tx.Stmt(insertTurn).Exec(t.User, t.Game, t.Turn, t.Surface, t.Input, t.LastSeq, t.At)
			case reqMessage:
				m := r.message
				_, _ = tx.Stmt(insertMessage).Exec(m.User, m.Game, m.Msg.Seq, m.Msg.Type, string(m.Msg.Body))
			case reqSnapshot:
				sn := r.snapshot
				_, _ = tx.Stmt(insertSnapshot).Exec(sn.User, sn.Game, sn.Turn, sn.Path, sn.Entities, sn.Agents)
			}
			opCount++
			if opCount >= commitEvery || time.Since(lastCommit) > commitMaxWait {
				commit()
			}
		case <-flushTimer.C:
			commit()
		}
	}
}
