// Package ids issues the correlation identifiers used to pair call requests
// with their responses and to name event subscriptions.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// CallID issues the identifier a call request carries and its response
// echoes. IDs from one process are monotonic, which keeps logs of concurrent
// in-flight calls readable.
func CallID() string { return CreateULID() }

// SubscriptionID issues the handle returned by event bus subscriptions.
func SubscriptionID() string { return CreateULID() }
