// Package fence tracks which request is current for each logical stream.
//
// [Fence.Begin] supersedes the previous token for a stream without cancelling the work
// behind it. Producers and consumers call [Fence.IsCurrent] before applying a result and
// drop anything from a superseded token.
package fence

import (
	"strings"
	"sync"

	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
)

// Token identifies one invocation of a stream.
type Token string

// NoToken means no stream is active. It is never current.
const NoToken Token = ""

func (t Token) String() string { return string(t) }

// StreamID builds a logical stream id such as "stream:homework" or "stream:documents:CS101".
func StreamID(kind models.Kind, parts ...string) string {
	var b strings.Builder
	b.WriteString("stream:")
	b.WriteString(string(kind))
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

type slot struct {
	token      Token
	generation uint64
}

// Fence holds one current token per stream id.
type Fence struct {
	mu      sync.Mutex
	streams map[string]slot
	mint    func() string
}

// New creates a fence that mints tokens with [shared.GenerateID].
func New() *Fence {
	return &Fence{streams: make(map[string]slot), mint: shared.GenerateID}
}

// Begin mints a token for streamID and makes it the current one.
func (f *Fence) Begin(streamID string) Token {
	tok := Token(f.mint())

	f.mu.Lock()
	s := f.streams[streamID]
	f.streams[streamID] = slot{token: tok, generation: s.generation + 1}
	f.mu.Unlock()
	return tok
}

// IsCurrent reports whether tok is the latest token issued for streamID.
func (f *Fence) IsCurrent(streamID string, tok Token) bool {
	if tok == NoToken {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[streamID].token == tok
}

// Current returns the active token for streamID, or [NoToken].
func (f *Fence) Current(streamID string) Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[streamID].token
}

// Generation counts Begin calls for streamID. It survives [Fence.Reset].
func (f *Fence) Generation(streamID string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[streamID].generation
}

// Reset moves every stream to [NoToken].
func (f *Fence) Reset() {
	f.mu.Lock()
	for id, s := range f.streams {
		f.streams[id] = slot{token: NoToken, generation: s.generation}
	}
	f.mu.Unlock()
}
