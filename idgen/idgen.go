// Package idgen generates opaque, time-sortable ids for Jobs, Batches, and
// Models — ULIDs rather than UUIDs, so listing by id order is also roughly
// listing by creation order.
package idgen

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a fresh ULID string.
func New() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// MustNew panics if id generation fails, for call sites (request handlers)
// that have no better recovery than a 500 anyway.
func MustNew() string {
	id, err := New()
	if err != nil {
		panic(err)
	}
	return id
}
