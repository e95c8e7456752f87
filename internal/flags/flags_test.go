package flags

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestFromIMAP(t *testing.T) {
	s := FromIMAP([]string{imap.SeenFlag, "\\flagged", "$Label1", imap.RecentFlag})

	assert.Equal(t, Seen|Flagged, s)
	assert.True(t, s.Has(Seen))
	assert.False(t, s.Has(Answered))
	assert.ElementsMatch(t, []string{imap.SeenFlag, imap.FlaggedFlag}, s.IMAP())
}

func TestResolve_DisjointChangesMerge(t *testing.T) {
	now := time.Now()
	base := Set(0)
	local := Change{Mask: Flagged, Value: Flagged, At: now}
	remote := Change{Mask: Seen, Value: Seen, At: now.Add(-time.Minute)}

	res, remoteWon := Resolve(base, local, remote)

	assert.Equal(t, Seen|Flagged, res)
	assert.Equal(t, Set(0), remoteWon)
}

func TestResolve_LaterLocalWriteWins(t *testing.T) {
	now := time.Now()
	base := Seen
	// server cleared Seen at t0, user set it again at t1 > t0
	remote := Change{Mask: Seen, Value: 0, At: now}
	local := Change{Mask: Seen, Value: Seen, At: now.Add(time.Second)}

	res, remoteWon := Resolve(base, local, remote)

	assert.Equal(t, Seen, res)
	assert.Equal(t, Set(0), remoteWon)
}

func TestResolve_LaterRemoteWriteWins(t *testing.T) {
	now := time.Now()
	base := Set(0)
	local := Change{Mask: Seen | Flagged, Value: Seen | Flagged, At: now}
	remote := Change{Mask: Seen, Value: 0, At: now.Add(time.Second)}

	res, remoteWon := Resolve(base, local, remote)

	// Seen conflicts and the server wrote last; Flagged is local only
	assert.Equal(t, Flagged, res)
	assert.Equal(t, Seen, remoteWon)
}

func TestResolve_TieGoesToServer(t *testing.T) {
	at := time.Now()
	local := Change{Mask: Deleted, Value: Deleted, At: at}
	remote := Change{Mask: Deleted, Value: 0, At: at}

	res, remoteWon := Resolve(Deleted, local, remote)

	assert.Equal(t, Set(0), res)
	assert.Equal(t, Deleted, remoteWon)
}

func TestResolve_AgreeingWritesAreNotConflicts(t *testing.T) {
	at := time.Now()
	local := Change{Mask: Seen, Value: Seen, At: at.Add(-time.Hour)}
	remote := Change{Mask: Seen, Value: Seen, At: at}

	res, remoteWon := Resolve(0, local, remote)

	assert.Equal(t, Seen, res)
	assert.Equal(t, Set(0), remoteWon)
}

func TestObserved(t *testing.T) {
	c := Observed(Seen|Answered, Seen|Flagged, time.Time{})

	assert.Equal(t, Answered|Flagged, c.Mask)
	assert.Equal(t, Flagged, c.Apply(Answered))
}

func TestPending(t *testing.T) {
	t0 := time.Now()
	c := Pending([]Update{
		{Add: Seen, At: t0},
		{Add: Flagged, At: t0.Add(time.Second)},
		{Remove: Seen, At: t0.Add(2 * time.Second)},
	})

	assert.Equal(t, Seen|Flagged, c.Mask)
	assert.Equal(t, Flagged, c.Value)
	assert.Equal(t, t0.Add(2*time.Second), c.At)
}

func TestParse(t *testing.T) {
	s, err := Parse([]string{"seen", "\\Flagged", "DRAFT"})
	assert.NoError(t, err)
	assert.Equal(t, Seen|Flagged|Draft, s)

	_, err = Parse([]string{"seen", "$Important"})
	assert.Error(t, err)

	s, err = Parse(nil)
	assert.NoError(t, err)
	assert.Equal(t, Set(0), s)
}
