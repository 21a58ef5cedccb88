// Package chatpool dispatches prompt jobs to a pool of stateless chat worker
// endpoints. Jobs are assigned round-robin, retried with exponential backoff,
// and gathered concurrently; a failed job degrades to an empty reply instead
// of surfacing into the pipeline.
package chatpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stagecraft.ai/internal/protocol"
)

// Handler bundles one agent's prompt request and, after completion, its
// reply. The pool mutates the handler in place so callers can correlate
// results without extra bookkeeping.
type Handler struct {
	AgentName    string
	SystemPrompt string

	// Context is a snapshot copy of the agent's prior conversation; the pool
	// never reads the live store.
	Context     []protocol.ContextMessage
	UserMessage string

	// Reply is the worker completion, "" when the job failed terminally.
	Reply string
	// Err records the terminal failure, nil on success.
	Err error
}

// Failed reports whether the job exhausted its retries.
func (h *Handler) Failed() bool { return h.Err != nil }

type Options struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries uint64
	// BackoffBase is the initial backoff interval between attempts.
	BackoffBase time.Duration
	Logger      *log.Logger
}

// Pool fans jobs out over M endpoints. The only shared mutable state is the
// round-robin counter, which is an atomic increment.
type Pool struct {
	endpoints []string
	next      atomic.Uint64
	client    *http.Client
	opts      Options
	log       *log.Logger
}

func New(endpoints []string, opts Options) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("chatpool: no endpoints")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pool{
		endpoints: append([]string(nil), endpoints...),
		client:    &http.Client{},
		opts:      opts,
		log:       logger,
	}, nil
}

// Size returns the number of worker endpoints.
func (p *Pool) Size() int { return len(p.endpoints) }

// Submit assigns the job to one worker and returns a future that yields the
// same handler once it has completed (successfully or not).
func (p *Pool) Submit(ctx context.Context, h *Handler) <-chan *Handler {
	done := make(chan *Handler, 1)
	endpoint := p.pick()
	go func() {
		p.run(ctx, endpoint, h)
		done <- h
	}()
	return done
}

// Gather submits all jobs concurrently and blocks until every one has
// completed or exhausted its retries. Results come back in input order; a
// failed job never poisons its siblings.
func (p *Pool) Gather(ctx context.Context, handlers []*Handler) {
	var wg sync.WaitGroup
	for _, h := range handlers {
		endpoint := p.pick()
		wg.Add(1)
		go func(h *Handler) {
			defer wg.Done()
			p.run(ctx, endpoint, h)
		}(h)
	}
	wg.Wait()
}

func (p *Pool) pick() string {
	n := p.next.Add(1) - 1
	return p.endpoints[n%uint64(len(p.endpoints))]
}

func (p *Pool) run(ctx context.Context, endpoint string, h *Handler) {
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
		reply, err := p.invoke(attemptCtx, endpoint, h)
		if err != nil {
			return err
		}
		if reply == "" {
			return fmt.Errorf("empty reply")
		}
		h.Reply = reply
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.opts.BackoffBase
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.opts.MaxRetries), ctx))
	if err != nil {
		// Terminal failure: record and degrade. The agent is silent this turn.
		h.Reply = ""
		h.Err = err
		p.log.Printf("chatpool: %s via %s failed: %v", h.AgentName, endpoint, err)
	}
}

func (p *Pool) invoke(ctx context.Context, endpoint string, h *Handler) (string, error) {
	body, err := json.Marshal(protocol.ChatRequest{
		SystemPrompt: h.SystemPrompt,
		Context:      h.Context,
		UserMessage:  h.UserMessage,
	})
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("worker status %d", resp.StatusCode)
	}
	decoded, err := protocol.DecodeChatResponse(raw)
	if err != nil {
		return "", err
	}
	return decoded.Output(), nil
}
