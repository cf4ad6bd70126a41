/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import "slices"

// MaxPromptCount is the intended upper bound on prompts per session.
// Nothing on the mutation path checks it.
const MaxPromptCount = 50

// Document field names.
const (
	FieldPlayers      = "players"
	FieldReadyPlayers = "readyPlayers"
	FieldPrompts      = "prompts"
)

// Record is the typed view of one session document.
type Record struct {
	SessionID    string   `json:"session_id"`
	Players      []string `json:"players"`
	ReadyPlayers []string `json:"ready_players"`
	Prompts      []string `json:"prompts"`
}

// RecordFromDocument converts a raw document into a Record, filling
// any field that was never written with an empty slice.
func RecordFromDocument(doc Document) Record {
	return Record{
		SessionID:    doc.Key,
		Players:      field(doc, FieldPlayers),
		ReadyPlayers: field(doc, FieldReadyPlayers),
		Prompts:      field(doc, FieldPrompts),
	}
}

func field(doc Document, name string) []string {
	values := doc.Fields[name]
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}

func (r Record) HasPlayer(name string) bool {
	return slices.Contains(r.Players, name)
}

// IsReady reports whether name is marked ready, regardless of membership.
func (r Record) IsReady(name string) bool {
	return slices.Contains(r.ReadyPlayers, name)
}

// ReadyMembers returns the ready players that are also members, in join order.
// Stray readiness entries left behind by kicks or foreign writers are skipped.
func (r Record) ReadyMembers() []string {
	ready := make([]string, 0, len(r.ReadyPlayers))
	for _, p := range r.Players {
		if r.IsReady(p) {
			ready = append(ready, p)
		}
	}
	return ready
}
