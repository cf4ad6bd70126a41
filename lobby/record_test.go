package lobby

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestRecordFromDocumentDefaultsMissingFields(t *testing.T) {
	rec := RecordFromDocument(Document{Key: "abc"})

	assert.Equal(t, rec.SessionID, "abc")
	assert.NotEqual(t, rec.Players, nil)
	assert.NotEqual(t, rec.ReadyPlayers, nil)
	assert.NotEqual(t, rec.Prompts, nil)
	assert.Equal(t, len(rec.Players), 0)
	assert.Equal(t, len(rec.ReadyPlayers), 0)
	assert.Equal(t, len(rec.Prompts), 0)
}

func TestRecordFromDocumentKeepsOrderAndCopies(t *testing.T) {
	fields := map[string][]string{
		FieldPlayers: {"carol", "alice", "bob"},
		FieldPrompts: {"a pirate"},
	}
	rec := RecordFromDocument(Document{Key: "abc", Fields: fields})

	assert.Equal(t, rec.Players, []string{"carol", "alice", "bob"})
	assert.Equal(t, rec.Prompts, []string{"a pirate"})
	assert.Equal(t, rec.ReadyPlayers, []string{})

	rec.Players[0] = "mallory"
	assert.Equal(t, fields[FieldPlayers][0], "carol")
}

func TestReadyMembersSkipsStrayEntries(t *testing.T) {
	rec := RecordFromDocument(Document{Fields: map[string][]string{
		FieldPlayers:      {"alice", "bob"},
		FieldReadyPlayers: {"ghost", "bob"},
	}})

	assert.Equal(t, rec.IsReady("ghost"), true)
	assert.Equal(t, rec.HasPlayer("ghost"), false)
	assert.Equal(t, rec.ReadyMembers(), []string{"bob"})
}

func TestMutationApplyIsIdempotent(t *testing.T) {
	join := Mutation{Field: FieldPlayers, Op: AddToSet, Value: "alice"}

	once := join.Apply(nil)
	twice := join.Apply(once)
	assert.Equal(t, once, []string{"alice"})
	assert.Equal(t, twice, once)

	kick := Mutation{Field: FieldPlayers, Op: RemoveFromSet, Value: "bob"}
	assert.Equal(t, kick.Apply(once), []string{"alice"})
}

func TestAddThenRemovePromptRoundTrip(t *testing.T) {
	fields := ApplyMutations(nil,
		Mutation{Field: FieldPrompts, Op: AddToSet, Value: "x"},
		Mutation{Field: FieldPrompts, Op: RemoveFromSet, Value: "x"},
	)

	assert.Equal(t, len(fields[FieldPrompts]), 0)
	assert.Equal(t, RecordFromDocument(Document{Fields: fields}).Prompts, []string{})
}

func TestApplyMutationsLeavesInputUntouched(t *testing.T) {
	in := map[string][]string{FieldPrompts: {"a", "b", "c"}}

	out := ApplyMutations(in, Mutation{Field: FieldPrompts, Op: RemoveFromSet, Value: "b"})

	assert.Equal(t, out[FieldPrompts], []string{"a", "c"})
	assert.Equal(t, in[FieldPrompts], []string{"a", "b", "c"})
}

func TestValidateMutations(t *testing.T) {
	assert.NotEqual(t, ValidateMutations(nil), nil)
	assert.NotEqual(t, ValidateMutations([]Mutation{{Op: AddToSet, Value: "x"}}), nil)
	assert.NotEqual(t, ValidateMutations([]Mutation{{Field: FieldPrompts, Value: "x"}}), nil)
	assert.Equal(t, ValidateMutations([]Mutation{{Field: FieldPrompts, Op: RemoveFromSet, Value: "x"}}), nil)
}

func TestSessionIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		id   string
		ok   bool
	}{
		{"", "", false},
		{"/", "", false},
		{"//", "", false},
		{"/abc123", "abc123", true},
		{"/abc123/", "abc123", true},
		{"/game/abc123", "abc123", true},
		{"/prefix/game/abc123//", "abc123", true},
	}

	for _, tt := range tests {
		id, ok := SessionIDFromPath(tt.path)
		assert.Equal(t, id, tt.id)
		assert.Equal(t, ok, tt.ok)
	}
}
