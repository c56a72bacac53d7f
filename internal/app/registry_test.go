package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peercall/signaling/internal/core"
	"github.com/peercall/signaling/internal/domain"
)

// eventLog records deliveries across all fake senders in arrival order so
// tests can assert cross-connection ordering.
type eventLog struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	Conn domain.ConnID
	Ev   core.Event
}

func (l *eventLog) add(conn domain.ConnID, ev core.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Conn: conn, Ev: ev})
}

func (l *eventLog) forConn(conn domain.ConnID) []core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.Event
	for _, e := range l.entries {
		if e.Conn == conn {
			out = append(out, e.Ev)
		}
	}
	return out
}

func (l *eventLog) all() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

type fakeSender struct {
	id  domain.ConnID
	log *eventLog
}

func (f *fakeSender) TrySend(ev core.Event) error {
	f.log.add(f.id, ev)
	return nil
}

func (f *fakeSender) Close() {}

func bind(t *testing.T, reg *Registry, l *eventLog, id domain.ConnID) *fakeSender {
	t.Helper()
	s := &fakeSender{id: id, log: l}
	reg.Bind(id, s)
	return s
}

func TestCreateRoomUniqueIDs(t *testing.T) {
	reg := NewRegistry()
	seen := make(map[domain.RoomID]bool)
	for i := 0; i < 500; i++ {
		id := reg.CreateRoom()
		require.Len(t, string(id), roomIDLength)
		require.False(t, seen[id], "duplicate room id %s", id)
		seen[id] = true
		for _, r := range string(id) {
			assert.Contains(t, roomIDAlphabet, string(r))
		}
	}
}

func TestRoomLookupIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	id := reg.CreateRoom()

	st := reg.RoomStatusOf(domain.NormalizeRoomID(string(id)))
	assert.True(t, st.Exists)

	lower := domain.NormalizeRoomID(string(id) + " ")
	assert.True(t, reg.RoomStatusOf(lower).Exists)
}

func TestDeleteRoomIdempotent(t *testing.T) {
	reg := NewRegistry()
	id := reg.CreateRoom()
	reg.DeleteRoom(id)
	assert.False(t, reg.RoomStatusOf(id).Exists)
	// second delete is a no-op
	reg.DeleteRoom(id)
}

func TestJoinAssignsDefaultNamesInOrder(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	roomID := reg.CreateRoom()
	bind(t, reg, l, "a")
	bind(t, reg, l, "b")
	bind(t, reg, l, "c")

	resA, err := reg.Join("a", roomID, "")
	require.NoError(t, err)
	assert.Equal(t, "User1", resA.Self.Name)

	resB, err := reg.Join("b", roomID, "")
	require.NoError(t, err)
	assert.Equal(t, "User2", resB.Self.Name)

	resC, err := reg.Join("c", roomID, "Carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol", resC.Self.Name)
}

func TestJoinUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	bind(t, reg, l, "a")
	_, err := reg.Join("a", "NOSUCH", "Al")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRejoinSameRoomIsReconnect(t *testing.T) {
	reg := NewRegistry()
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }

	l := &eventLog{}
	roomID := reg.CreateRoom()
	bind(t, reg, l, "a")

	_, err := reg.Join("a", roomID, "")
	require.NoError(t, err)

	reg.now = func() time.Time { return base.Add(time.Hour) }
	res, err := reg.Join("a", roomID, "Alice")
	require.NoError(t, err)
	assert.True(t, res.Reconnect)
	assert.Equal(t, "Alice", res.Self.Name)

	st := reg.RoomStatusOf(roomID)
	require.Equal(t, 1, st.UserCount, "reconnect must not duplicate the participant")
	assert.Equal(t, "Alice", st.Users[0].Name)

	sums := reg.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].ConnectionAttempts, "reconnect must not bump the attempt counter")
	assert.Equal(t, base, sums[0].Users[0].JoinedAt, "reconnect must not refresh joinedAt")
}

func TestRejoinWithEmptyNameKeepsOldName(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	roomID := reg.CreateRoom()
	bind(t, reg, l, "a")

	_, err := reg.Join("a", roomID, "Alice")
	require.NoError(t, err)
	res, err := reg.Join("a", roomID, "")
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Self.Name)
}

func TestMembershipConsistency(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	r1 := reg.CreateRoom()
	r2 := reg.CreateRoom()
	bind(t, reg, l, "a")
	bind(t, reg, l, "b")

	_, err := reg.Join("a", r1, "")
	require.NoError(t, err)
	_, err = reg.Join("b", r2, "")
	require.NoError(t, err)

	room, ok := reg.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, r1, room)

	st := reg.RoomStatusOf(r1)
	require.Len(t, st.Users, 1)
	assert.Equal(t, domain.ConnID("a"), st.Users[0].ID)

	// a appears in r1 only
	for _, u := range reg.RoomStatusOf(r2).Users {
		assert.NotEqual(t, domain.ConnID("a"), u.ID)
	}
}

func TestTeardownSecondCallIsNoop(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	roomID := reg.CreateRoom()
	bind(t, reg, l, "a")
	_, err := reg.Join("a", roomID, "")
	require.NoError(t, err)

	_, ok := reg.Teardown("a")
	assert.True(t, ok)
	_, ok = reg.Teardown("a")
	assert.False(t, ok)
}

func TestTeardownDeletesEmptiedRoom(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	roomID := reg.CreateRoom()
	bind(t, reg, l, "a")
	bind(t, reg, l, "b")
	_, err := reg.Join("a", roomID, "")
	require.NoError(t, err)
	_, err = reg.Join("b", roomID, "")
	require.NoError(t, err)

	res, ok := reg.Teardown("a")
	require.True(t, ok)
	assert.False(t, res.Deleted)
	assert.Len(t, res.Peers, 1)
	assert.True(t, reg.RoomStatusOf(roomID).Exists)

	res, ok = reg.Teardown("b")
	require.True(t, ok)
	assert.True(t, res.Deleted)
	assert.Empty(t, res.Peers)
	assert.False(t, reg.RoomStatusOf(roomID).Exists)
}

func TestResolveTargetScopedToRoom(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	r1 := reg.CreateRoom()
	r2 := reg.CreateRoom()
	bind(t, reg, l, "a")
	bind(t, reg, l, "b")
	bind(t, reg, l, "outsider")

	_, err := reg.Join("a", r1, "")
	require.NoError(t, err)
	_, err = reg.Join("b", r2, "")
	require.NoError(t, err)

	// target in another room is invisible
	_, err = reg.ResolveTarget("a", "b")
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)

	// sender outside any room is rejected before target lookup
	_, err = reg.ResolveTarget("outsider", "a")
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
}

func TestSweepEmptySparesOccupiedAndYoungRooms(t *testing.T) {
	reg := NewRegistry()
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }

	l := &eventLog{}
	old := reg.CreateRoom()
	occupied := reg.CreateRoom()
	bind(t, reg, l, "a")
	_, err := reg.Join("a", occupied, "")
	require.NoError(t, err)

	reg.now = func() time.Time { return base.Add(2 * time.Hour) }
	young := reg.CreateRoom()

	removed := reg.SweepEmpty(base.Add(time.Hour))
	assert.Equal(t, []domain.RoomID{old}, removed)
	assert.False(t, reg.RoomStatusOf(old).Exists)
	assert.True(t, reg.RoomStatusOf(occupied).Exists)
	assert.True(t, reg.RoomStatusOf(young).Exists)
}

func TestStats(t *testing.T) {
	reg := NewRegistry()
	l := &eventLog{}
	r1 := reg.CreateRoom()
	r2 := reg.CreateRoom()
	bind(t, reg, l, "a")
	bind(t, reg, l, "b")
	bind(t, reg, l, "c")
	for conn, room := range map[domain.ConnID]domain.RoomID{"a": r1, "b": r1, "c": r2} {
		_, err := reg.Join(conn, room, "")
		require.NoError(t, err)
	}

	rooms, users := reg.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, users)
}
