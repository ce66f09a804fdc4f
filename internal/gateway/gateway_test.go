package gateway_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuppid-coder/connect/internal/events"
	"github.com/cuppid-coder/connect/internal/gateway"
	"github.com/cuppid-coder/connect/internal/identity"
	"github.com/cuppid-coder/connect/internal/presence"
	"github.com/cuppid-coder/connect/internal/relay"
)

type fakeConn struct {
	id uuid.UUID

	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	closeErr error
}

func newFakeConn() *fakeConn { return &fakeConn{id: uuid.New()} }

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Send(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
}

func (c *fakeConn) Close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeErr = err
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) received(t *testing.T, event events.ServerEvent) []json.RawMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var payloads []json.RawMessage
	for _, raw := range c.sent {
		var env events.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event == string(event) {
			payloads = append(payloads, env.Payload)
		}
	}
	return payloads
}

type statusWrite struct {
	status   identity.Status
	lastSeen time.Time
}

// fakeDirectory is an in-memory identity.Directory recording status writes.
type fakeDirectory struct {
	mu     sync.Mutex
	users  map[string]identity.User
	writes map[string][]statusWrite
}

func newFakeDirectory(users ...identity.User) *fakeDirectory {
	d := &fakeDirectory{
		users:  make(map[string]identity.User),
		writes: make(map[string][]statusWrite),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) SetStatus(_ context.Context, id string, status identity.Status, lastSeen time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes[id] = append(d.writes[id], statusWrite{status: status, lastSeen: lastSeen})
	return nil
}

func (d *fakeDirectory) lastWrite(id string) (statusWrite, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	writes := d.writes[id]
	if len(writes) == 0 {
		return statusWrite{}, false
	}
	return writes[len(writes)-1], true
}

type fixture struct {
	gw        *gateway.Gateway
	manager   *presence.Manager
	directory *fakeDirectory
}

func newFixture(opts gateway.Options, users ...identity.User) *fixture {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	manager := presence.NewManager(logger)
	directory := newFakeDirectory(users...)
	gw := gateway.New(logger, manager, relay.New(logger, manager), directory, opts)
	return &fixture{gw: gw, manager: manager, directory: directory}
}

func alice() identity.User { return identity.User{ID: "a", Name: "Alice", Avatar: "a.png"} }
func bob() identity.User   { return identity.User{ID: "b", Name: "Bob", Avatar: "b.png"} }

func (f *fixture) handle(t *testing.T, user identity.User, conn *fakeConn, raw string) {
	t.Helper()
	f.gw.HandleMessage(context.Background(), user, conn.ID(), []byte(raw))
}

// Scenario A: a successful connect broadcasts online to everyone already
// connected, including the new arrival.
func TestConnectBroadcastsOnlineStatus(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connB := newFakeConn()
	f.gw.Connect(bob(), connB)

	connA := newFakeConn()
	f.gw.Connect(alice(), connA)

	statuses := connB.received(t, events.UserStatusChanged)
	require.Len(t, statuses, 2) // bob's own online, then alice's

	var payload events.StatusChangePayload
	require.NoError(t, json.Unmarshal(statuses[1], &payload))
	assert.Equal(t, "a", payload.UserID)
	assert.Equal(t, "online", payload.Status)

	assert.True(t, f.manager.IsOnline("a"))
	assert.True(t, f.manager.InRoom(presence.NotificationsRoom("a"), "a"))
	assert.True(t, f.manager.InRoom(presence.ContactsRoom("a"), "a"))
}

func TestConnectPersistsOnlineStatus(t *testing.T) {
	f := newFixture(gateway.Options{}, alice())
	f.gw.Connect(alice(), newFakeConn())

	require.Eventually(t, func() bool {
		w, ok := f.directory.lastWrite("a")
		return ok && w.status == identity.StatusOnline
	}, time.Second, 5*time.Millisecond, "durable online write never happened")
}

// Scenario B: typing relays to the rest of the chat room but never echoes
// back to the sender.
func TestTypingExcludesSender(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)

	f.handle(t, alice(), connA, `{"event":"join_chat","payload":{"chatId":"c1"}}`)
	f.handle(t, bob(), connB, `{"event":"join_chat","payload":{"chatId":"c1"}}`)
	f.handle(t, alice(), connA, `{"event":"typing","payload":{"chatId":"c1"}}`)

	require.Len(t, connB.received(t, events.UserTyping), 1)
	assert.Empty(t, connA.received(t, events.UserTyping), "sender got its own typing event back")

	var payload events.TypingPayload
	require.NoError(t, json.Unmarshal(connB.received(t, events.UserTyping)[0], &payload))
	assert.Equal(t, "a", payload.UserID)
	assert.Equal(t, "c1", payload.ChatID)
}

func TestTypingThrottleWindow(t *testing.T) {
	f := newFixture(gateway.Options{TypingThrottle: time.Hour}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)
	f.handle(t, alice(), connA, `{"event":"join_chat","payload":{"chatId":"c1"}}`)
	f.handle(t, bob(), connB, `{"event":"join_chat","payload":{"chatId":"c1"}}`)

	f.handle(t, alice(), connA, `{"event":"typing","payload":{"chatId":"c1"}}`)
	f.handle(t, alice(), connA, `{"event":"typing","payload":{"chatId":"c1"}}`)
	assert.Len(t, connB.received(t, events.UserTyping), 1, "repeat typing inside window was relayed")

	// stop_typing resets the window so the next typing relays immediately
	f.handle(t, alice(), connA, `{"event":"stop_typing","payload":{"chatId":"c1"}}`)
	require.Len(t, connB.received(t, events.UserStopTyping), 1)
	f.handle(t, alice(), connA, `{"event":"typing","payload":{"chatId":"c1"}}`)
	assert.Len(t, connB.received(t, events.UserTyping), 2)
}

// Scenario C: disconnect without leave_chat still scrubs room membership,
// and the last member's departure removes the room itself.
func TestDisconnectCleansUpRooms(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)
	room := presence.ChatRoom("c1")
	f.handle(t, alice(), connA, `{"event":"join_chat","payload":{"chatId":"c1"}}`)
	f.handle(t, bob(), connB, `{"event":"join_chat","payload":{"chatId":"c1"}}`)

	f.gw.Disconnect("a", connA.ID())

	assert.False(t, f.manager.IsOnline("a"))
	assert.False(t, f.manager.InRoom(room, "a"))
	require.Len(t, f.manager.RoomMembers(room), 1)

	// bob leaving too deletes the room entirely
	f.handle(t, bob(), connB, `{"event":"leave_chat","payload":{"chatId":"c1"}}`)
	assert.Nil(t, f.manager.RoomMembers(room))

	// offline broadcast reached bob
	var last events.StatusChangePayload
	statuses := connB.received(t, events.UserStatusChanged)
	require.NotEmpty(t, statuses)
	require.NoError(t, json.Unmarshal(statuses[len(statuses)-1], &last))
	assert.Equal(t, "a", last.UserID)
	assert.Equal(t, "offline", last.Status)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)

	f.gw.Disconnect("a", connA.ID())
	f.gw.Disconnect("a", connA.ID()) // duplicate signal from the transport

	var offline int
	for _, raw := range connB.received(t, events.UserStatusChanged) {
		var payload events.StatusChangePayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		if payload.UserID == "a" && payload.Status == "offline" {
			offline++
		}
	}
	assert.Equal(t, 1, offline, "duplicate disconnect produced a second offline broadcast")
}

func TestDisconnectPersistsOfflineAndLastSeen(t *testing.T) {
	f := newFixture(gateway.Options{}, alice())
	connA := newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Disconnect("a", connA.ID())

	require.Eventually(t, func() bool {
		w, ok := f.directory.lastWrite("a")
		return ok && w.status == identity.StatusOffline && !w.lastSeen.IsZero()
	}, time.Second, 5*time.Millisecond)
}

// Duplicate login: the superseded connection is force-closed and its late
// disconnect signal must not knock the new connection offline.
func TestDuplicateLoginSupersedes(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connB := newFakeConn()
	f.gw.Connect(bob(), connB)

	conn1 := newFakeConn()
	f.gw.Connect(alice(), conn1)
	conn2 := newFakeConn()
	f.gw.Connect(alice(), conn2)

	assert.True(t, conn1.isClosed(), "superseded connection was not force-closed")
	assert.True(t, f.manager.IsOnline("a"))

	// late disconnect from the old transport
	f.gw.Disconnect("a", conn1.ID())
	assert.True(t, f.manager.IsOnline("a"), "stale disconnect deregistered the new connection")

	var offline int
	for _, raw := range connB.received(t, events.UserStatusChanged) {
		var payload events.StatusChangePayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		if payload.UserID == "a" && payload.Status == "offline" {
			offline++
		}
	}
	assert.Zero(t, offline, "stale disconnect broadcast offline for a live user")
}

// Scenario E: a friend request to an offline target is silently dropped.
func TestFriendRequestToOfflineTarget(t *testing.T) {
	f := newFixture(gateway.Options{}, alice())
	connA := newFakeConn()
	f.gw.Connect(alice(), connA)

	f.handle(t, alice(), connA, `{"event":"send_friend_request","payload":{"targetUserId":"nobody"}}`)
	// no panic, no error surfaced, nothing delivered anywhere
	assert.Empty(t, connA.received(t, events.FriendRequestReceived))
}

func TestFriendRequestDelivery(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)

	f.handle(t, alice(), connA, `{"event":"send_friend_request","payload":{"targetUserId":"b"}}`)

	got := connB.received(t, events.FriendRequestReceived)
	require.Len(t, got, 1)
	var payload events.RequestPayload
	require.NoError(t, json.Unmarshal(got[0], &payload))
	assert.Equal(t, "a", payload.From.ID)
	assert.Equal(t, "Alice", payload.From.Name)
	assert.Equal(t, "a.png", payload.From.Avatar)
}

func TestCommentThreadPresenceEvents(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)

	f.handle(t, alice(), connA, `{"event":"join_comments","payload":{"projectId":"p1"}}`)
	f.handle(t, bob(), connB, `{"event":"join_comments","payload":{"projectId":"p1"}}`)

	// the whole thread, joiner included, hears about arrivals
	require.Len(t, connA.received(t, events.UserJoinedComments), 2)

	f.handle(t, bob(), connB, `{"event":"typing_comment","payload":{"projectId":"p1"}}`)
	typing := connA.received(t, events.UserTypingComment)
	require.Len(t, typing, 1)
	var payload events.CommentTypingPayload
	require.NoError(t, json.Unmarshal(typing[0], &payload))
	assert.Equal(t, "b", payload.UserID)
	assert.Equal(t, "Bob", payload.UserName)
	assert.Equal(t, "p1", payload.ProjectID)

	f.handle(t, bob(), connB, `{"event":"leave_comments","payload":{"projectId":"p1"}}`)
	require.Len(t, connA.received(t, events.UserLeftComments), 1)
	assert.False(t, f.manager.InRoom(presence.ProjectRoom("p1"), "b"))
}

func TestCommentCommandsWithoutScopeAreIgnored(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)
	// plant a member in the degenerate room a scope-less command would
	// otherwise address
	require.NoError(t, f.manager.Join(presence.TaskRoom(""), "b"))

	f.handle(t, alice(), connA, `{"event":"join_comments","payload":{}}`)
	f.handle(t, alice(), connA, `{"event":"leave_comments","payload":{}}`)

	assert.Empty(t, connB.received(t, events.UserJoinedComments), "scope-less join_comments was relayed")
	assert.Empty(t, connB.received(t, events.UserLeftComments), "scope-less leave_comments was relayed")
	assert.False(t, f.manager.InRoom(presence.TaskRoom(""), "a"))
}

func TestUnknownAndMalformedEventsAreIgnored(t *testing.T) {
	f := newFixture(gateway.Options{}, alice())
	connA := newFakeConn()
	f.gw.Connect(alice(), connA)

	f.handle(t, alice(), connA, `{"event":"warp_drive","payload":{}}`)
	f.handle(t, alice(), connA, `garbage`)
	f.handle(t, alice(), connA, `{"event":"join_chat","payload":{}}`) // missing chatId

	assert.True(t, f.manager.IsOnline("a"), "bad commands must not affect the connection")
	assert.False(t, f.manager.InRoom(presence.ChatRoom(""), "a"))
}

func TestCollaboratorSurface(t *testing.T) {
	f := newFixture(gateway.Options{}, alice(), bob())
	connA, connB := newFakeConn(), newFakeConn()
	f.gw.Connect(alice(), connA)
	f.gw.Connect(bob(), connB)
	f.handle(t, alice(), connA, `{"event":"join_chat","payload":{"chatId":"c1"}}`)
	f.handle(t, bob(), connB, `{"event":"join_chat","payload":{"chatId":"c1"}}`)

	f.gw.NotifyNewMessage("c1", json.RawMessage(`{"text":"hello"}`))
	assert.Len(t, connA.received(t, events.NewMessage), 1)
	assert.Len(t, connB.received(t, events.NewMessage), 1)

	f.gw.PushNotification("b", json.RawMessage(`{"title":"task assigned"}`))
	assert.Len(t, connB.received(t, events.NewNotification), 1)
	assert.Empty(t, connA.received(t, events.NewNotification))

	f.gw.AnnounceFriendRequestUpdate(alice(), "b", true)
	updates := connB.received(t, events.FriendRequestUpdate)
	require.Len(t, updates, 1)
	var update events.RequestUpdatePayload
	require.NoError(t, json.Unmarshal(updates[0], &update))
	assert.Equal(t, "accepted", update.Status)
	assert.Equal(t, "a", update.From.ID)

	online := f.gw.OnlineUsers()
	assert.Len(t, online, 2)
	assert.Equal(t, identity.StatusOnline, f.gw.UserStatus("a"))
	assert.Equal(t, identity.StatusOffline, f.gw.UserStatus("ghost"))
}
