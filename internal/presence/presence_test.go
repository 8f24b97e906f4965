package presence

import (
	"testing"
	"time"

	"github.com/astromechza/codecollab/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestJoinAndGet(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")

	p, ok := tbl.Get("p1")
	require.True(t, ok)
	require.Equal(t, wire.StatusActive, p.Status)
	require.Equal(t, "ada", p.Name)
}

func TestLeaveRemovesPeer(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")
	tbl.Leave("p1")

	_, ok := tbl.Get("p1")
	require.False(t, ok)
}

func TestSweepTransitionsToIdleThenAway(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")

	changed := tbl.Sweep(time.Now().Add(IdleTimeout + time.Second))
	require.Len(t, changed, 1)
	require.Equal(t, wire.StatusIdle, changed[0].Status)
	p, _ := tbl.Get("p1")
	require.Equal(t, wire.StatusIdle, p.Status)

	changed = tbl.Sweep(time.Now().Add(AwayTimeout + time.Second))
	require.Len(t, changed, 1)
	require.Equal(t, wire.StatusAway, changed[0].Status)
	p, _ = tbl.Get("p1")
	require.Equal(t, wire.StatusAway, p.Status)

	require.Empty(t, tbl.Sweep(time.Now().Add(AwayTimeout+time.Second)), "no further transition once already Away")
}

func TestTouchResetsToActive(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")
	tbl.Sweep(time.Now().Add(AwayTimeout + time.Second))

	tbl.Touch("p1")
	p, _ := tbl.Get("p1")
	require.Equal(t, wire.StatusActive, p.Status)
}

func TestMarkOfflineNeverAutoRecovers(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")
	tbl.MarkOffline("p1")

	tbl.Sweep(time.Now())
	p, _ := tbl.Get("p1")
	require.Equal(t, wire.StatusOffline, p.Status)
}

func TestOpenFileAndCloseFile(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")
	tbl.OpenFile("p1", "a.go")
	tbl.OpenFile("p1", "b.go")
	tbl.OpenFile("p1", "a.go")

	p, _ := tbl.Get("p1")
	require.ElementsMatch(t, []string{"a.go", "b.go"}, p.OpenFiles)

	tbl.CloseFile("p1", "a.go")
	p, _ = tbl.Get("p1")
	require.ElementsMatch(t, []string{"b.go"}, p.OpenFiles)
}

func TestSetCursorAndClear(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")
	tbl.SetCursor("p1", Cursor{FilePath: "a.go", Line: 1, Column: 2})

	p, _ := tbl.Get("p1")
	require.NotNil(t, p.Cursor)
	require.Equal(t, "a.go", p.Cursor.FilePath)

	tbl.ClearCursor("p1")
	p, _ = tbl.Get("p1")
	require.Nil(t, p.Cursor)
}

func TestAllReturnsSnapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Join("p1", "ada", "#fff")
	tbl.Join("p2", "grace", "#000")

	all := tbl.All()
	require.Len(t, all, 2)
	require.Equal(t, 2, tbl.Len())
}
