/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrClosed is returned by stores that have been shut down.
var ErrClosed = errors.New("store is closed")

// Document is a session as the store holds it: any field may be absent.
type Document struct {
	Key    string
	Fields map[string][]string
}

func (d Document) clone() Document {
	fields := make(map[string][]string, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = slices.Clone(v)
	}
	return Document{Key: d.Key, Fields: fields}
}

// Op is a commutative set operation on one document field.
type Op int

const (
	AddToSet Op = iota + 1
	RemoveFromSet
)

func (o Op) String() string {
	switch o {
	case AddToSet:
		return "add"
	case RemoveFromSet:
		return "remove"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Mutation applies Op with Value to Field.
type Mutation struct {
	Field string
	Op    Op
	Value string
}

func (m Mutation) String() string {
	return fmt.Sprintf("%s %s %q", m.Field, m.Op, m.Value)
}

func (m Mutation) validate() error {
	if m.Field == "" {
		return errors.New("mutation field is required")
	}
	if m.Op != AddToSet && m.Op != RemoveFromSet {
		return fmt.Errorf("unsupported mutation %s", m.Op)
	}
	return nil
}

// Apply returns values with the mutation applied. Adding a present value or
// removing an absent one returns values unchanged.
func (m Mutation) Apply(values []string) []string {
	i := slices.Index(values, m.Value)
	switch m.Op {
	case AddToSet:
		if i >= 0 {
			return values
		}
		return append(slices.Clone(values), m.Value)
	case RemoveFromSet:
		if i < 0 {
			return values
		}
		return slices.Delete(slices.Clone(values), i, i+1)
	}
	return values
}

// ApplyMutations applies muts to a copy of fields, in order.
func ApplyMutations(fields map[string][]string, muts ...Mutation) map[string][]string {
	out := maps.Clone(fields)
	if out == nil {
		out = make(map[string][]string)
	}
	for _, m := range muts {
		out[m.Field] = m.Apply(out[m.Field])
	}
	return out
}

// ValidateMutations checks that every mutation names a field and a known op.
func ValidateMutations(muts []Mutation) error {
	if len(muts) == 0 {
		return errors.New("no mutations given")
	}
	for _, m := range muts {
		if err := m.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Store is a keyed document store with set mutations and push subscriptions.
type Store interface {
	// Create allocates a fresh session key without writing any fields.
	Create(ctx context.Context) (string, error)

	// Get returns the current document for key, or false if there is none.
	Get(ctx context.Context, key string) (Document, bool, error)

	// Update applies muts to key atomically, creating the document if needed.
	Update(ctx context.Context, key string, muts ...Mutation) error

	// Subscribe calls fn with the current document and again after every
	// accepted update, until the returned function is called.
	Subscribe(ctx context.Context, key string, fn func(Document)) (func(), error)

	// Purge removes documents that have not been touched since cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// NewKey returns a new globally unique session key.
func NewKey() string {
	return strings.ToLower(ulid.Make().String())
}
