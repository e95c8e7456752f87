// Package flags models IMAP system flags as a bit set and reconciles
// concurrent local and server edits per flag.
package flags

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
)

type Set uint16

const (
	Seen Set = 1 << iota
	Answered
	Flagged
	Deleted
	Draft
)

const All = Seen | Answered | Flagged | Deleted | Draft

var names = []struct {
	bit  Set
	name string
}{
	{Seen, imap.SeenFlag},
	{Answered, imap.AnsweredFlag},
	{Flagged, imap.FlaggedFlag},
	{Deleted, imap.DeletedFlag},
	{Draft, imap.DraftFlag},
}

// FromIMAP ignores keywords and flags it does not track.
func FromIMAP(imapFlags []string) Set {
	var s Set
	for _, f := range imapFlags {
		for _, n := range names {
			if strings.EqualFold(f, n.name) {
				s |= n.bit
			}
		}
	}
	return s
}

// Parse accepts IMAP flag names with or without the leading backslash.
// Unlike FromIMAP it rejects names it does not track.
func Parse(names []string) (Set, error) {
	var s Set
	for _, name := range names {
		f := FromIMAP([]string{"\\" + strings.TrimPrefix(name, "\\")})
		if f == 0 {
			return 0, fmt.Errorf("unknown flag %q", name)
		}
		s |= f
	}
	return s, nil
}

func (s Set) IMAP() []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func (s Set) Has(f Set) bool {
	return s&f == f
}

func (s Set) String() string {
	parts := s.IMAP()
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func apply(s, mask, value Set) Set {
	return (s &^ mask) | (value & mask)
}

// Change describes which bits a writer touched (Mask), the values it set
// them to (Value) and when it did so.
type Change struct {
	Mask  Set
	Value Set
	At    time.Time
}

func (c Change) Apply(s Set) Set {
	return apply(s, c.Mask, c.Value)
}

func (c Change) IsZero() bool {
	return c.Mask == 0
}

// Observed builds the change a server made relative to base.
func Observed(base, current Set, at time.Time) Change {
	return Change{Mask: base ^ current, Value: current, At: at}
}

// Resolve merges a local and a remote change made against the same base.
// Bits touched by only one side take that side's value. Bits touched by
// both go to the later writer; the server wins ties. The second return
// value holds the conflicting bits the server won.
func Resolve(base Set, local, remote Change) (Set, Set) {
	both := local.Mask & remote.Mask
	res := apply(base, remote.Mask&^both, remote.Value)
	res = apply(res, local.Mask&^both, local.Value)

	// bits both sides set to the same value are not a conflict
	conflict := both & (local.Value ^ remote.Value)
	res = apply(res, both&^conflict, remote.Value)

	if local.At.After(remote.At) {
		return apply(res, conflict, local.Value), 0
	}
	return apply(res, conflict, remote.Value), conflict
}

// Update is a local flag edit waiting to be pushed to the server.
type Update struct {
	Folder string
	UID    uint32
	Add    Set
	Remove Set
	At     time.Time
}

func (u Update) Change() Change {
	return Change{Mask: u.Add | u.Remove, Value: u.Add &^ u.Remove, At: u.At}
}

// Pending folds several queued updates for one message into a single change.
// Later updates override earlier ones on the bits they touch.
func Pending(updates []Update) Change {
	var c Change
	for _, u := range updates {
		uc := u.Change()
		c.Value = apply(c.Value, uc.Mask, uc.Value)
		c.Mask |= uc.Mask
		if u.At.After(c.At) {
			c.At = u.At
		}
	}
	return c
}
