/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package lobby keeps a live view of shared game sessions in sync with a
// document store.
//
// A session document holds three set-valued fields: players, readyPlayers
// and prompts. All writes go through commutative add/remove set operations,
// so clients writing the same session concurrently only ever interleave.
// A View never applies its own writes locally; the store echoes every write
// back through the subscription and that echo is the only confirmation.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logf is a printf-style log sink.
type Logf func(format string, args ...any)

// mutationTimeout bounds store requests the client issues on its own, such
// as the automatic join, which have no caller context.
const mutationTimeout = 10 * time.Second

// Client issues session mutations against one store and opens live views.
type Client struct {
	store Store
	logf  Logf
}

// NewClient returns a Client backed by store. A nil logf discards logs.
func NewClient(store Store, logf Logf) *Client {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &Client{
		store: store,
		logf:  logf,
	}
}

// CreateSession allocates an empty session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	id, err := c.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	c.logf("GAMES: Created session %s", id)

	return id, nil
}

func (c *Client) Join(ctx context.Context, sessionID, name string) error {
	return c.mutate(ctx, sessionID, Mutation{Field: FieldPlayers, Op: AddToSet, Value: name})
}

// Kick removes name from the players. Readiness is left as it was.
func (c *Client) Kick(ctx context.Context, sessionID, name string) error {
	return c.mutate(ctx, sessionID, Mutation{Field: FieldPlayers, Op: RemoveFromSet, Value: name})
}

func (c *Client) SetReady(ctx context.Context, sessionID, name string, ready bool) error {
	op := RemoveFromSet
	if ready {
		op = AddToSet
	}

	return c.mutate(ctx, sessionID, Mutation{Field: FieldReadyPlayers, Op: op, Value: name})
}

// AddPrompt appends text to the prompts unless an identical prompt exists.
// MaxPromptCount is not checked here.
func (c *Client) AddPrompt(ctx context.Context, sessionID, text string) error {
	return c.mutate(ctx, sessionID, Mutation{Field: FieldPrompts, Op: AddToSet, Value: text})
}

func (c *Client) RemovePrompt(ctx context.Context, sessionID, text string) error {
	return c.mutate(ctx, sessionID, Mutation{Field: FieldPrompts, Op: RemoveFromSet, Value: text})
}

func (c *Client) mutate(ctx context.Context, sessionID string, m Mutation) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if err := c.store.Update(ctx, sessionID, m); err != nil {
		c.logf("ERROR: Update %s (%s) failed: %v", sessionID, m, err)

		return fmt.Errorf("update session %s: %w", sessionID, err)
	}

	return nil
}

// View is one live, read-only copy of a session for one player.
type View struct {
	client    *Client
	sessionID string
	name      string

	mu         sync.Mutex
	record     Record
	joinIssued bool
	closed     bool
	updates    chan Record

	unsubscribe func()
	closeOnce   sync.Once
}

// Open loads the session once and then follows it. If the load or the
// subscription fails, no view is returned. A session that has never been
// written opens as empty.
func (c *Client) Open(ctx context.Context, sessionID, name string) (*View, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if name == "" {
		return nil, errors.New("player name is required")
	}

	doc, _, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	doc.Key = sessionID

	v := &View{
		client:    c,
		sessionID: sessionID,
		name:      name,
		record:    RecordFromDocument(doc),
		updates:   make(chan Record, 1),
	}
	v.updates <- v.record

	unsubscribe, err := c.store.Subscribe(ctx, sessionID, v.apply)
	if err != nil {
		return nil, fmt.Errorf("subscribe to session %s: %w", sessionID, err)
	}

	v.mu.Lock()
	v.unsubscribe = unsubscribe
	join := v.needsJoinLocked()
	v.mu.Unlock()

	c.logf("GAMES: %q opened session %s", name, sessionID)

	if join {
		v.join()
	}

	return v, nil
}

func (v *View) SessionID() string {
	return v.sessionID
}

func (v *View) Name() string {
	return v.name
}

// Record returns the most recently observed session state.
func (v *View) Record() Record {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.record
}

// Updates yields each newly observed record. A reader that falls behind
// only sees the latest one. The channel is closed by Close.
func (v *View) Updates() <-chan Record {
	return v.updates
}

// Close stops this view's subscription. Other views of the same session
// are unaffected. Mutations already sent are not recalled.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		close(v.updates)
		unsubscribe := v.unsubscribe
		v.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}

		v.client.logf("GAMES: %q closed session %s", v.name, v.sessionID)
	})
}

// apply replaces the record with a pushed snapshot verbatim.
func (v *View) apply(doc Document) {
	doc.Key = v.sessionID
	rec := RecordFromDocument(doc)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}

	v.record = rec

	select {
	case <-v.updates:
	default:
	}
	v.updates <- rec

	join := v.needsJoinLocked()
	v.mu.Unlock()

	if join {
		v.join()
	}
}

// needsJoinLocked is the membership rule run on every observed record: one
// join per stretch of absence. Seeing the player listed re-arms it, so a kick
// is followed by a rejoin.
func (v *View) needsJoinLocked() bool {
	if v.closed {
		return false
	}

	if v.record.HasPlayer(v.name) {
		v.joinIssued = false
		return false
	}

	if v.joinIssued {
		return false
	}

	v.joinIssued = true

	return true
}

func (v *View) join() {
	ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
	defer cancel()

	if err := v.client.Join(ctx, v.sessionID, v.name); err != nil {
		v.mu.Lock()
		v.joinIssued = false
		v.mu.Unlock()

		return
	}

	v.client.logf("GAMES: %q joined session %s", v.name, v.sessionID)
}
