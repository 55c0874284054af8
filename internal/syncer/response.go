package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/desertthunder/portalsync/internal/fence"
	"github.com/desertthunder/portalsync/internal/tasks"
)

// Response is the answer to get, refresh and the initial part of stream.
type Response[T any] struct {
	Data        []T
	FromCache   bool
	Age         time.Duration
	Token       fence.Token
	Fingerprint string
	Superseded  bool
	Failures    []tasks.Failure
}

type responseJSON[T any] struct {
	Data        []T         `json:"data"`
	FromCache   bool        `json:"fromCache"`
	Age         int64       `json:"age"`
	Token       fence.Token `json:"responseId,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	Superseded  bool        `json:"superseded,omitempty"`
	Failed      int         `json:"failedUnits,omitempty"`
}

// MarshalJSON renders age in milliseconds.
func (r Response[T]) MarshalJSON() ([]byte, error) {
	data := r.Data
	if data == nil {
		data = []T{}
	}
	return json.Marshal(responseJSON[T]{
		Data:        data,
		FromCache:   r.FromCache,
		Age:         r.Age.Milliseconds(),
		Token:       r.Token,
		Fingerprint: r.Fingerprint,
		Superseded:  r.Superseded,
		Failed:      len(r.Failures),
	})
}

// Fingerprint hashes the JSON encoding of data. Identical data always hashes the same.
func Fingerprint[T any](data []T) string {
	if data == nil {
		data = []T{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

func newResponse[T any](data []T, tok fence.Token) *Response[T] {
	if data == nil {
		data = []T{}
	}
	return &Response[T]{Data: data, Token: tok, Fingerprint: Fingerprint(data)}
}
