package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/classpad/liveclass/internal/core"
	"github.com/classpad/liveclass/internal/domain"
	"github.com/classpad/liveclass/internal/presence"
)

type coordFixture struct {
	gw      *fakeGateway
	records *fakeRecords
	coord   *Coordinator
}

func newCoordFixture(t *testing.T, grace time.Duration) *coordFixture {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gw := newFakeGateway()
	records := newFakeRecords()
	return &coordFixture{
		gw:      gw,
		records: records,
		coord:   NewCoordinator(gw, presence.NewStore(db), records, grace),
	}
}

func TestCoordinator_JoinDeliversUserListAndAnnounces(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, time.Minute)

	f.coord.Join("mod", "c-mod", "Ms. Reyes", "r1", domain.RoleModerator)
	f.coord.Join("stu", "c-stu", "Sam", "r1", domain.RoleStudent)

	lists := f.gw.named(core.EvUserList)
	req.Len(lists, 2)

	// The moderator joined an empty room.
	req.Equal(domain.ConnID("c-mod"), lists[0].To)
	req.Empty(lists[0].Payload.([]core.UserEntry))

	// The student sees exactly the moderator.
	req.Equal(domain.ConnID("c-stu"), lists[1].To)
	entries := lists[1].Payload.([]core.UserEntry)
	req.Len(entries, 1)
	req.Equal(domain.ConnID("c-mod"), entries[0].SocketID)
	req.Equal(domain.ParticipantID("mod"), entries[0].UserID)
	req.Equal("Ms. Reyes", entries[0].Name)
	req.Equal(domain.RoleModerator, entries[0].Role)

	joins := f.gw.named(core.EvUserJoined)
	req.Len(joins, 2)
	req.Equal(domain.ConnID("c-stu"), joins[1].Except, "joiner excluded from their own announcement")

	req.Equal(2, f.coord.Registry.Count("r1"))
}

func TestCoordinator_RenameBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, time.Minute)

	f.coord.Join("stu", "c1", "Sam", "r1", domain.RoleStudent)
	f.coord.Rename("c1", "r1", "Samuel")

	changes := f.gw.named(core.EvUserNameChanged)
	req.Len(changes, 1)
	payload := changes[0].Payload.(core.NameChange)
	req.Equal(domain.ConnID("c1"), payload.SocketID)
	req.Equal("Samuel", payload.Name)
}

func TestCoordinator_RenameUnknownHandleIsSilent(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, time.Minute)

	f.coord.Rename("ghost", "r1", "Nobody")
	req.Zero(f.gw.count(core.EvUserNameChanged))
	req.Zero(f.gw.count(core.EvError))
}

func TestCoordinator_VoiceActivityIsPureBroadcast(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, time.Minute)

	f.coord.VoiceActivity("c1", "r1", true)

	acts := f.gw.named(core.EvUserVoiceActivity)
	req.Len(acts, 1)
	req.Equal(domain.ConnID("c1"), acts[0].Except)
	req.True(acts[0].Payload.(core.VoiceActivity).Active)
}

func TestCoordinator_SignalRelaysVerbatim(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, time.Minute)

	payload := json.RawMessage(`{"sdp":"v=0...","type":"offer"}`)
	f.coord.Signal(core.EvOffer, payload, "c-sender", "c-target")

	offers := f.gw.named(core.EvOffer)
	req.Len(offers, 1)
	req.Equal(domain.ConnID("c-target"), offers[0].To)
	env := offers[0].Payload.(core.SignalEnvelope)
	req.Equal("c-sender", env.From)
	req.JSONEq(string(payload), string(env.Payload))
}

func TestCoordinator_SignalUnknownKindDropped(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, time.Minute)

	f.coord.Signal("shutdown", json.RawMessage(`{}`), "c1", "c2")
	req.Empty(f.gw.sent)
}

func TestCoordinator_ModeratorRejoinWithinGrace(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, 50*time.Millisecond)

	f.coord.Join("mod", "c-mod", "Ms. Reyes", "r1", domain.RoleModerator)
	f.coord.Join("stu", "c-stu", "Sam", "r1", domain.RoleStudent)

	f.coord.Disconnect("c-mod")
	req.Equal(1, f.gw.count(core.EvModeratorLeft))
	req.Equal(1, f.gw.count(core.EvUserDisconnected))

	// Rejoin under a fresh handle well inside the grace window.
	f.coord.Join("mod", "c-mod2", "Ms. Reyes", "r1", domain.RoleModerator)
	req.Equal(1, f.gw.count(core.EvModeratorReturned))

	time.Sleep(150 * time.Millisecond)
	req.Zero(f.gw.count(core.EvRoomClosed), "cancelled closure must never fire")
	req.Equal(2, f.coord.Registry.Count("r1"))
}

func TestCoordinator_GraceExpiryClosesRoom(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, 30*time.Millisecond)

	f.coord.Join("mod", "c-mod", "Ms. Reyes", "r1", domain.RoleModerator)
	f.coord.Join("stu", "c-stu", "Sam", "r1", domain.RoleStudent)
	f.coord.Disconnect("c-mod")

	time.Sleep(120 * time.Millisecond)

	req.Equal(1, f.gw.count(core.EvModeratorLeft))
	req.Equal(1, f.gw.count(core.EvRoomClosed))
	req.Equal(domain.ClassEnded, f.records.statusOf("r1"))
	req.Zero(f.coord.Registry.Count("r1"), "registry entry torn down")
}

func TestCoordinator_LoneModeratorDisconnectTearsDownImmediately(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, 30*time.Millisecond)

	f.coord.Join("mod", "c-mod", "Ms. Reyes", "r2", domain.RoleModerator)
	f.coord.Disconnect("c-mod")

	req.Zero(f.gw.count(core.EvModeratorLeft))
	req.Zero(f.coord.Registry.Count("r2"))

	time.Sleep(100 * time.Millisecond)
	req.Zero(f.gw.count(core.EvRoomClosed), "no timer was ever started")
}

func TestCoordinator_StudentDisconnectLeavesLifecycleAlone(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, 30*time.Millisecond)

	f.coord.Join("mod", "c-mod", "Ms. Reyes", "r1", domain.RoleModerator)
	f.coord.Join("stu", "c-stu", "Sam", "r1", domain.RoleStudent)
	f.coord.Disconnect("c-stu")

	req.Zero(f.gw.count(core.EvModeratorLeft))
	phase, ok := f.coord.Lifecycle.Phase("r1")
	req.True(ok)
	req.Equal(domain.ModeratorPresent, phase)
	req.Equal(1, f.coord.Registry.Count("r1"))
}

func TestCoordinator_RejoinEvictsOldPresenceWithoutDoubleDecrement(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, time.Minute)

	f.coord.Join("stu", "c-old", "Sam", "r1", domain.RoleStudent)
	f.coord.Join("stu", "c-new", "Sam", "r1", domain.RoleStudent)

	// Old handle has no presence row anymore.
	_, err := f.coord.Presence.Get("c-old")
	req.ErrorIs(err, domain.ErrNotFound)

	// But it still occupies a registry slot until its socket dies.
	req.Equal(2, f.coord.Registry.Count("r1"))

	f.coord.Disconnect("c-old")
	req.Equal(1, f.coord.Registry.Count("r1"))

	f.coord.Disconnect("c-old")
	req.Equal(1, f.coord.Registry.Count("r1"), "repeat disconnect must not decrement again")

	got, err := f.coord.Presence.Get("c-new")
	req.NoError(err)
	req.Equal(domain.ParticipantID("stu"), got.ID)
}

func TestCoordinator_CloseRoomBroadcastsClassEnded(t *testing.T) {
	req := require.New(t)
	f := newCoordFixture(t, 30*time.Millisecond)

	f.coord.Join("mod", "c-mod", "Ms. Reyes", "r1", domain.RoleModerator)
	f.coord.Join("stu", "c-stu", "Sam", "r1", domain.RoleStudent)
	f.coord.Disconnect("c-mod")

	f.coord.CloseRoom("r1")
	req.Equal(1, f.gw.count(core.EvClassEnded))
	req.Zero(f.coord.Registry.Count("r1"))

	time.Sleep(100 * time.Millisecond)
	req.Zero(f.gw.count(core.EvRoomClosed), "explicit close cancels the pending timer")
}

// failingPresence simulates a lagging or unavailable backing store.
type failingPresence struct{}

func (failingPresence) Upsert(*domain.Participant) error { return domain.ErrStorageUnavailable }
func (failingPresence) Get(domain.ConnID) (*domain.Participant, error) {
	return nil, domain.ErrStorageUnavailable
}
func (failingPresence) Rename(domain.ConnID, string) error { return domain.ErrStorageUnavailable }
func (failingPresence) Remove(domain.ConnID) error         { return domain.ErrStorageUnavailable }
func (failingPresence) List([]domain.ConnID) ([]domain.Participant, error) {
	return nil, domain.ErrStorageUnavailable
}

func TestCoordinator_RegistryProceedsWhenPresenceFails(t *testing.T) {
	req := require.New(t)
	gw := newFakeGateway()
	coord := NewCoordinator(gw, failingPresence{}, newFakeRecords(), time.Minute)

	coord.Join("stu", "c1", "Sam", "r1", domain.RoleStudent)

	// The failure is surfaced to the triggering connection only.
	errs := gw.named(core.EvError)
	req.Len(errs, 1)
	req.Equal(domain.ConnID("c1"), errs[0].To)

	// Membership is still authoritative and disconnect still cleans up.
	req.Equal(1, coord.Registry.Count("r1"))
	coord.Disconnect("c1")
	req.Zero(coord.Registry.Count("r1"))
}
