package order

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Numberer issues human-readable order numbers.
//
// The prefix is derived from the creation time's wall-clock fields and is
// not unique on its own: every order placed in the same minute shares it.
// A per-process monotonic suffix separates them. Safe for concurrent use.
type Numberer struct {
	now func() time.Time
	seq atomic.Int64
}

// NewNumberer creates a Numberer reading time from now.
func NewNumberer(now func() time.Time) *Numberer {
	return &Numberer{now: now}
}

// NewNumbererAt creates a Numberer whose next suffix is start+1.
// Used to continue numbering after a restart.
func NewNumbererAt(now func() time.Time, start int64) *Numberer {
	n := &Numberer{now: now}
	n.seq.Store(start)
	return n
}

// Next returns a new order number, e.g. "202-081-1116-1638-0001".
func (n *Numberer) Next() string {
	return fmt.Sprintf("%s-%04d", TimePrefix(n.now()), n.seq.Add(1))
}

// Current returns the last suffix issued.
func (n *Numberer) Current() int64 {
	return n.seq.Load()
}

// TimePrefix renders t as YYY-MMD-DDHH-HHMM: the first three digits of the
// year, the month followed by the first digit of the day, the day followed
// by the hour, then the hour followed by the minute.
func TimePrefix(t time.Time) string {
	year := fmt.Sprintf("%04d", t.Year())
	day := fmt.Sprintf("%02d", t.Day())
	return fmt.Sprintf("%s-%02d%s-%s%02d-%02d%02d",
		year[:3],
		int(t.Month()), day[:1],
		day, t.Hour(),
		t.Hour(), t.Minute(),
	)
}
