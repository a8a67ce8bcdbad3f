// Package runid generates correlation identifiers that tag every state
// emitted for one asynchronous invocation.
package runid

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const prefix = "RUN_"

var counter atomic.Uint32

// New returns an identifier of the form RUN_<epoch-millis>_<4-digit-suffix>.
//
// Uniqueness is best-effort: the suffix mixes the sub-millisecond clock with
// a process-wide counter, so two calls within the same millisecond still
// differ at any realistic invocation rate. Sustained generation faster than
// the suffix space can cycle is not guaranteed collision-free.
//
// New is safe for concurrent use without external locking.
func New() string {
	now := time.Now()
	micros := uint32(now.Nanosecond() / 1000)
	suffix := (micros + counter.Add(1)*31) % 10000
	return fmt.Sprintf("%s%d_%04d", prefix, now.UnixMilli(), suffix)
}

// Timestamp recovers the epoch-millisecond component embedded in id.
// It reports false for anything that does not look like a generated RunId.
func Timestamp(id string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return time.Time{}, false
	}
	millis, _, ok := strings.Cut(rest, "_")
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || ms < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
