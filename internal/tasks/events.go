package tasks

import (
	"fmt"

	"github.com/desertthunder/portalsync/internal/fence"
	"github.com/desertthunder/portalsync/internal/models"
)

// EventKind discriminates [Event] variants.
type EventKind string

const (
	EventChunk        EventKind = "chunk"         // partial results for one unit
	EventProgress     EventKind = "progress"      // a unit finished
	EventComplete     EventKind = "complete"      // every unit finished
	EventError        EventKind = "error"         // the operation failed as a whole
	EventRefreshStart EventKind = "refresh-start" // consumers must clear on-screen data
	EventStreamStart  EventKind = "stream-start"  // consumers adopt the token
)

func (k EventKind) String() string { return string(k) }

// Terminal reports whether no further events follow for the same token.
func (k EventKind) Terminal() bool {
	return k == EventComplete || k == EventError
}

// Event is one message of a streamed fetch. Every variant carries the token of the
// operation it belongs to.
type Event[T any] struct {
	Kind      EventKind   `json:"type"`
	Token     fence.Token `json:"responseId,omitempty"`
	Scope     string      `json:"scope,omitempty"`
	Items     []T         `json:"items,omitzero"`
	Labels    []string    `json:"labels,omitempty"`
	FromCache bool        `json:"fromCache,omitempty"`
	Completed int         `json:"completed"`
	Total     int         `json:"total"`
	Label     string      `json:"label,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// Emitter receives events. The orchestrator calls it from a single goroutine.
type Emitter[T any] func(Event[T])

// Erase converts the event to an untyped one for transports that multiplex kinds.
func (e Event[T]) Erase() Event[any] {
	out := Event[any]{
		Kind:      e.Kind,
		Token:     e.Token,
		Scope:     e.Scope,
		Labels:    e.Labels,
		FromCache: e.FromCache,
		Completed: e.Completed,
		Total:     e.Total,
		Label:     e.Label,
		Message:   e.Message,
	}
	if e.Items != nil {
		out.Items = make([]any, len(e.Items))
		for i, it := range e.Items {
			out.Items[i] = it
		}
	}
	return out
}

// RefreshStarted is the marker published before any data of a refresh.
func RefreshStarted[T any](tok fence.Token, scope models.Scope) Event[T] {
	return Event[T]{Kind: EventRefreshStart, Token: tok, Scope: scope.String()}
}

// StreamStarted is the marker published when a stream begins.
func StreamStarted[T any](tok fence.Token, scope models.Scope) Event[T] {
	return Event[T]{Kind: EventStreamStart, Token: tok, Scope: scope.String()}
}

// CachedChunk replays cached items at the start of a stream.
func CachedChunk[T any](tok fence.Token, scope models.Scope, items []T) Event[T] {
	if items == nil {
		items = []T{}
	}
	return Event[T]{Kind: EventChunk, Token: tok, Scope: scope.String(), Items: items, FromCache: true}
}

func chunkEvent[T any](tok fence.Token, scope models.Scope, u models.FetchUnit, items []T) Event[T] {
	if items == nil {
		items = []T{}
	}
	return Event[T]{
		Kind:   EventChunk,
		Token:  tok,
		Scope:  scope.String(),
		Items:  items,
		Labels: []string{u.Course.Label(), u.Subtype},
	}
}

func progressEvent[T any](tok fence.Token, scope models.Scope, completed, total int, u models.FetchUnit) Event[T] {
	return Event[T]{
		Kind:      EventProgress,
		Token:     tok,
		Scope:     scope.String(),
		Completed: completed,
		Total:     total,
		Label:     u.Label(),
		Message:   fmt.Sprintf("[%d/%d] %s", completed, total, u.Label()),
	}
}

func completeEvent[T any](tok fence.Token, scope models.Scope, total int) Event[T] {
	return Event[T]{
		Kind:      EventComplete,
		Token:     tok,
		Scope:     scope.String(),
		Completed: total,
		Total:     total,
	}
}

func errorEvent[T any](tok fence.Token, scope models.Scope, err error) Event[T] {
	return Event[T]{
		Kind:    EventError,
		Token:   tok,
		Scope:   scope.String(),
		Message: err.Error(),
	}
}
