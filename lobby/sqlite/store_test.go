package sqlite

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/Seednode/namegame/lobby"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "namegame.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestReopenKeepsDocuments(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "namegame.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Update(context.Background(), "abc", lobby.Mutation{Field: lobby.FieldPlayers, Op: lobby.AddToSet, Value: "alice"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	doc, ok, err := reopened.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected document to survive reopen")
	}
	if got := doc.Fields[lobby.FieldPlayers]; !slices.Equal(got, []string{"alice"}) {
		t.Fatalf("players = %v, want [alice]", got)
	}
}

func TestCreateWritesNoFields(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	key, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(key) != 26 {
		t.Fatalf("key length = %d, want 26", len(key))
	}

	doc, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected created document to exist")
	}
	if len(doc.Fields) != 0 {
		t.Fatalf("fields = %v, want none", doc.Fields)
	}

	rec := lobby.RecordFromDocument(doc)
	if rec.Players == nil || rec.Prompts == nil || rec.ReadyPlayers == nil {
		t.Fatalf("expected defaulted record, got %+v", rec)
	}
}

func TestGetMissingDocument(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)

	doc, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected missing document")
	}
	if doc.Key != "missing" {
		t.Fatalf("key = %q, want %q", doc.Key, "missing")
	}
}

func TestUpdateSetSemantics(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	steps := []lobby.Mutation{
		{Field: lobby.FieldPrompts, Op: lobby.AddToSet, Value: "a pirate"},
		{Field: lobby.FieldPrompts, Op: lobby.AddToSet, Value: "the moon"},
		{Field: lobby.FieldPrompts, Op: lobby.AddToSet, Value: "a pirate"},
		{Field: lobby.FieldPrompts, Op: lobby.RemoveFromSet, Value: "nothing"},
		{Field: lobby.FieldPrompts, Op: lobby.AddToSet, Value: "a kettle"},
		{Field: lobby.FieldPrompts, Op: lobby.RemoveFromSet, Value: "the moon"},
		{Field: lobby.FieldPrompts, Op: lobby.AddToSet, Value: "the moon"},
	}
	for _, m := range steps {
		if err := store.Update(ctx, "abc", m); err != nil {
			t.Fatalf("update %s: %v", m, err)
		}
	}

	doc, _, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{"a pirate", "a kettle", "the moon"}
	if got := doc.Fields[lobby.FieldPrompts]; !slices.Equal(got, want) {
		t.Fatalf("prompts = %v, want %v", got, want)
	}
}

func TestUpdateRejectsEmptyMutations(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)

	if err := store.Update(context.Background(), "abc"); err == nil {
		t.Fatal("expected error for empty mutation list")
	}
	if err := store.Update(context.Background(), "", lobby.Mutation{Field: lobby.FieldPrompts, Op: lobby.AddToSet, Value: "x"}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSubscribeDeliversCurrentThenUpdates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	got := make(chan lobby.Document, 16)
	unsubscribe, err := store.Subscribe(ctx, "abc", func(doc lobby.Document) { got <- doc })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	first := receive(t, got)
	if len(first.Fields) != 0 {
		t.Fatalf("first delivery = %v, want empty", first.Fields)
	}

	if err := store.Update(ctx, "abc", lobby.Mutation{Field: lobby.FieldPlayers, Op: lobby.AddToSet, Value: "alice"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	second := receive(t, got)
	if !slices.Equal(second.Fields[lobby.FieldPlayers], []string{"alice"}) {
		t.Fatalf("second delivery players = %v, want [alice]", second.Fields[lobby.FieldPlayers])
	}
}

func TestClientOverSQLite(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	client := lobby.NewClient(store, nil)
	ctx := context.Background()

	id, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	view, err := client.Open(ctx, id, "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer view.Close()

	if err := client.SetReady(ctx, id, "alice", true); err != nil {
		t.Fatalf("set ready: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case rec := <-view.Updates():
			if rec.HasPlayer("alice") && rec.IsReady("alice") {
				return
			}
		case <-deadline:
			t.Fatalf("view never saw alice ready, last record %+v", view.Record())
		}
	}
}

func TestPurgeRemovesIdleDocuments(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	if err := store.Update(ctx, "old", lobby.Mutation{Field: lobby.FieldPlayers, Op: lobby.AddToSet, Value: "alice"}); err != nil {
		t.Fatalf("update old: %v", err)
	}

	store.now = func() time.Time { return start.Add(time.Hour) }
	if err := store.Update(ctx, "new", lobby.Mutation{Field: lobby.FieldPlayers, Op: lobby.AddToSet, Value: "bob"}); err != nil {
		t.Fatalf("update new: %v", err)
	}

	purged, err := store.Purge(ctx, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	if _, ok, _ := store.Get(ctx, "old"); ok {
		t.Fatal("expected old document to be purged")
	}
	if _, ok, _ := store.Get(ctx, "new"); !ok {
		t.Fatal("expected new document to remain")
	}
}

func TestPurgeKeepsSubscribedDocuments(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }

	client := lobby.NewClient(store, nil)
	view, err := client.Open(ctx, "abc", "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := client.SetReady(ctx, "abc", "alice", true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if err := client.AddPrompt(ctx, "abc", "pirate"); err != nil {
		t.Fatalf("add prompt: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for rec := view.Record(); !rec.IsReady("alice") || len(rec.Prompts) != 1; rec = view.Record() {
		select {
		case <-view.Updates():
		case <-deadline:
			t.Fatalf("view never settled, last record %+v", view.Record())
		}
	}

	purged, err := store.Purge(ctx, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Fatalf("purged = %d while subscribed, want 0", purged)
	}

	doc, ok, err := store.Get(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("get after purge: ok=%v err=%v", ok, err)
	}
	rec := lobby.RecordFromDocument(doc)
	if !slices.Equal(rec.ReadyPlayers, []string{"alice"}) || !slices.Equal(rec.Prompts, []string{"pirate"}) {
		t.Fatalf("record after purge = %+v", rec)
	}

	view.Close()

	purged, err = store.Purge(ctx, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge after close: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d after close, want 1", purged)
	}
}

func receive(t *testing.T, ch <-chan lobby.Document) lobby.Document {
	t.Helper()

	select {
	case doc := <-ch:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}

	return lobby.Document{}
}
