package events

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/discussion"
)

type collectingFeeder struct {
	delivered chan [3]string // meetingID, agentID, reply
}

func newCollectingFeeder() *collectingFeeder {
	return &collectingFeeder{delivered: make(chan [3]string, 8)}
}

func (f *collectingFeeder) Deliver(meetingID, agentID, reply string) bool {
	f.delivered <- [3]string{meetingID, agentID, reply}
	return true
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + srv.URL[len("http"):] + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_PublishBroadcastsToSubscriber(t *testing.T) {
	hub := NewHub()
	feeder := newCollectingFeeder()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, "meeting-1", feeder)
	}))
	defer srv.Close()

	conn := dialWS(t, srv, "/ws")

	// Give the handler a moment to register the connection before publishing.
	time.Sleep(50 * time.Millisecond)

	hub.Publish("meeting-1", discussion.Event{Type: discussion.EventConsensusReached, MeetingID: "meeting-1", Timestamp: time.Now()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got envelope
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, discussion.EventConsensusReached, got.Type)
	assert.Equal(t, "meeting-1", got.MeetingID)
}

func TestHub_SeparateChannelsDontCrossDeliver(t *testing.T) {
	hub := NewHub()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.URL.Query().Get("meeting_id")
		hub.HandleWebSocket(w, r, meetingID, nil)
	}))
	defer srv.Close()

	connA := dialWS(t, srv, "/ws?meeting_id=meeting-a")
	connB := dialWS(t, srv, "/ws?meeting_id=meeting-b")
	time.Sleep(50 * time.Millisecond)

	hub.Publish("meeting-a", discussion.Event{Type: discussion.EventRoundStarted, MeetingID: "meeting-a", Timestamp: time.Now()})

	require.NoError(t, connA.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got envelope
	require.NoError(t, connA.ReadJSON(&got))
	assert.Equal(t, "meeting-a", got.MeetingID)

	require.NoError(t, connB.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	err := connB.ReadJSON(&envelope{})
	assert.Error(t, err, "meeting-b's subscriber should not receive meeting-a's event")
}

func TestHub_HandleWebSocket_ForwardsInboundRepliesToFeeder(t *testing.T) {
	hub := NewHub()
	feeder := newCollectingFeeder()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, "meeting-1", feeder)
	}))
	defer srv.Close()

	conn := dialWS(t, srv, "/ws")
	require.NoError(t, conn.WriteJSON(map[string]string{"agent_id": "agent-a", "reply": "X"}))

	select {
	case msg := <-feeder.delivered:
		assert.Equal(t, "meeting-1", msg[0])
		assert.Equal(t, "agent-a", msg[1])
		assert.Equal(t, "X", msg[2])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply to be delivered to feeder")
	}
}

func TestMeetingChannel(t *testing.T) {
	assert.Equal(t, "meeting_abc-123", MeetingChannel("abc-123"))
}
