package id

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for the entities the service mints IDs for.
const (
	PrefixAccount     = "acc"
	PrefixAuction     = "auc"
	PrefixBid         = "bid"
	PrefixOrder       = "ord"
	PrefixEntry       = "txn"
	PrefixTransfer    = "trf"
	PrefixFundRequest = "fnd"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Generate returns "<prefix>_<ULID>". IDs minted in the same process sort by
// creation time, including within one millisecond.
func Generate(prefix string) string {
	entropyMu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()

	if prefix == "" {
		return u.String()
	}
	return prefix + "_" + u.String()
}

// Time extracts the timestamp embedded in an ID produced by Generate.
func Time(id string) (time.Time, bool) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
