package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// fakeGateway is a websocket server that acknowledges connects and records
// every frame the client sends.
type fakeGateway struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	frames   chan Frame
	sessions chan *websocket.Conn
	ack      Frame
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	g := &fakeGateway{
		frames:   make(chan Frame, 32),
		sessions: make(chan *websocket.Conn, 4),
		ack:      Frame{Type: FrameConnect},
	}

	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := conn.WriteJSON(g.ack); err != nil {
			_ = conn.Close()
			return
		}
		if g.ack.Type != FrameConnect {
			_ = conn.Close()
			return
		}

		g.sessions <- conn
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			g.frames <- frame
		}
	}))
	t.Cleanup(g.server.Close)

	return g
}

func (g *fakeGateway) nextFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case frame := <-g.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return Frame{}
	}
}

func (g *fakeGateway) session(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-g.sessions:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client session")
		return nil
	}
}

func newTestConnection(g *fakeGateway, onEvent EventHandler) *Connection {
	return NewConnection(Config{
		AccountID: "acct-1",
		BaseURL:   g.server.URL,
		Token:     "runtime-token",
	}, onEvent, testLogger())
}

func TestConnect(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	var statuses []Status
	c.OnStatus(func(s Status) { statuses = append(statuses, s) })

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Connected)

	// Idempotent: a second Connect is a no-op.
	require.NoError(t, c.Connect(context.Background()))
	assert.Len(t, statuses, 1)
}

func TestConnect_RejectedByGateway(t *testing.T) {
	g := newFakeGateway(t)
	g.ack = Frame{Type: FrameConnectError, Error: "bad token"}

	c := newTestConnection(g, nil)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad token")
	assert.False(t, c.IsConnected())
	assert.NotEmpty(t, c.LastError())
}

func TestSubscribe_EmitsOnlyPassedIDs(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Subscribe([]string{"pod-a", "pod-b"}))

	frame := g.nextFrame(t)
	assert.Equal(t, FrameSubscribe, frame.Type)
	assert.Equal(t, []string{"pod-a", "pod-b"}, frame.PodIDs)

	// Second call carries only the new id on the wire but the tracked set
	// holds everything.
	require.NoError(t, c.Subscribe([]string{"pod-c"}))
	frame = g.nextFrame(t)
	assert.Equal(t, []string{"pod-c"}, frame.PodIDs)
	assert.ElementsMatch(t, []string{"pod-a", "pod-b", "pod-c"}, c.Subscribed())
}

func TestUnsubscribe_EmitsOnlyPassedIDs(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Subscribe([]string{"pod-a", "pod-b", "pod-c"}))
	g.nextFrame(t)

	require.NoError(t, c.Unsubscribe([]string{"pod-b"}))

	frame := g.nextFrame(t)
	assert.Equal(t, FrameUnsubscribe, frame.Type)
	assert.Equal(t, []string{"pod-b"}, frame.PodIDs)
	assert.ElementsMatch(t, []string{"pod-a", "pod-c"}, c.Subscribed())
}

func TestReconnectReplaysFullSubscriptionSet(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	first := g.session(t)

	require.NoError(t, c.Subscribe([]string{"pod-a", "pod-b"}))
	g.nextFrame(t)
	require.NoError(t, c.Subscribe([]string{"pod-c"}))
	g.nextFrame(t)

	// Drop the server side; the client reconnects and replays the whole
	// tracked set in one subscribe frame.
	require.NoError(t, first.Close())
	second := g.session(t)

	frame := g.nextFrame(t)
	assert.Equal(t, FrameSubscribe, frame.Type)
	assert.ElementsMatch(t, []string{"pod-a", "pod-b", "pod-c"}, frame.PodIDs)

	// A ping round-trip proves no extra subscribe frames followed the replay.
	require.NoError(t, second.WriteJSON(Frame{Type: FramePing}))
	assert.Equal(t, FramePong, g.nextFrame(t).Type)
}

func TestConnect_ConcurrentCallsDialOnce(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Connect(context.Background())
		}()
	}
	wg.Wait()

	g.session(t)
	select {
	case <-g.sessions:
		t.Fatal("a second session was opened for one logical connection")
	case <-time.After(200 * time.Millisecond):
	}
	assert.True(t, c.IsConnected())
}

func TestSubscribe_WhileDisconnectedMutatesSetOnly(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	require.NoError(t, c.Subscribe([]string{"pod-a"}))
	require.NoError(t, c.Unsubscribe([]string{"pod-a"}))
	require.NoError(t, c.Subscribe([]string{"pod-b"}))
	assert.Equal(t, []string{"pod-b"}, c.Subscribed())

	// The full tracked set is replayed once connected.
	require.NoError(t, c.Connect(context.Background()))
	frame := g.nextFrame(t)
	assert.Equal(t, FrameSubscribe, frame.Type)
	assert.Equal(t, []string{"pod-b"}, frame.PodIDs)
}

func TestSubscribe_EmptyIsNoop(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Subscribe(nil))
	require.NoError(t, c.Unsubscribe([]string{}))
	assert.Empty(t, c.Subscribed())
}

func TestPingAnsweredWithPong(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	session := g.session(t)

	require.NoError(t, session.WriteJSON(Frame{Type: FramePing}))

	frame := g.nextFrame(t)
	assert.Equal(t, FramePong, frame.Type)
}

func TestEventFramesReachHandler(t *testing.T) {
	g := newFakeGateway(t)

	received := make(chan models.Event, 1)
	c := newTestConnection(g, func(ev models.Event) { received <- ev })
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	session := g.session(t)

	require.NoError(t, session.WriteJSON(Frame{
		Type:  FrameEvent,
		Event: &models.Event{ID: "evt-1", Type: models.EventTypePodMessage, PodID: "pod-1"},
	}))

	select {
	case ev := <-received:
		assert.Equal(t, "evt-1", ev.ID)
		assert.Equal(t, "pod-1", ev.PodID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDisconnect(t *testing.T) {
	g := newFakeGateway(t)
	c := newTestConnection(g, nil)

	require.NoError(t, c.Connect(context.Background()))
	c.Disconnect()

	assert.False(t, c.IsConnected())

	// A torn-down connection cannot be revived.
	err := c.Connect(context.Background())
	require.Error(t, err)

	// Disconnect is safe to repeat.
	c.Disconnect()
}

func TestSocketURL(t *testing.T) {
	t.Run("HTTPSBecomesWSS", func(t *testing.T) {
		u, err := socketURL("https://commonly.example.com/")
		require.NoError(t, err)
		assert.Equal(t, "wss://commonly.example.com/api/agents/runtime/socket?transport=websocket", u)
	})

	t.Run("HTTPBecomesWS", func(t *testing.T) {
		u, err := socketURL("http://localhost:8080")
		require.NoError(t, err)
		assert.Equal(t, "ws://localhost:8080/api/agents/runtime/socket?transport=websocket", u)
	})

	t.Run("UnsupportedScheme", func(t *testing.T) {
		_, err := socketURL("ftp://nope")
		assert.Error(t, err)
	})
}
