package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientCachesToken(t *testing.T) {
	var tokenCalls, sends int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			atomic.AddInt32(&tokenCalls, 1)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case "/notifications":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			var n Notification
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&n))
			assert.Equal(t, "applet-1", n.AppletID)
			atomic.AddInt32(&sends, 1)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "app", "secret", time.Second)
	n := Notification{AppletID: "applet-1", Kind: KindScheduleUpdated, UserIDs: []string{"u1"}}
	require.NoError(t, c.Notify(context.Background(), n))
	require.NoError(t, c.Notify(context.Background(), n))

	assert.EqualValues(t, 1, atomic.LoadInt32(&tokenCalls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&sends))
}

func TestClientReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "app", "secret", time.Second).Notify(context.Background(), Notification{UserIDs: []string{"u"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type failing struct{ calls int }

func (f *failing) Notify(context.Context, Notification) error {
	f.calls++
	return errors.New("down")
}

func TestMultiSwallowsFailures(t *testing.T) {
	f := &failing{}
	hub := NewHub(zap.NewNop())
	sub := &Subscriber{ID: "c1", UserID: "u1", Events: make(chan Event, 1)}
	hub.Register(sub)
	defer hub.Unregister("c1")

	m := NewMulti(zap.NewNop(), f, nil, hub)
	err := m.Notify(context.Background(), Notification{AppletID: "a", Kind: KindReminder, UserIDs: []string{"u1"}})
	assert.NoError(t, err)
	assert.Equal(t, 1, f.calls)

	select {
	case ev := <-sub.Events:
		assert.Equal(t, KindReminder, ev.EventType)
		assert.Contains(t, ev.Data, `"applet_id":"a"`)
	default:
		t.Fatal("subscriber did not receive the event")
	}
}

func TestMultiSkipsEmptyRecipients(t *testing.T) {
	f := &failing{}
	m := NewMulti(zap.NewNop(), f)
	require.NoError(t, m.Notify(context.Background(), Notification{AppletID: "a"}))
	assert.Zero(t, f.calls)
}

func TestHubSendsOnlyToRecipient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := &Subscriber{ID: "a", UserID: "u1", Events: make(chan Event, 1)}
	b := &Subscriber{ID: "b", UserID: "u2", Events: make(chan Event, 1)}
	hub.Register(a)
	hub.Register(b)

	assert.Equal(t, 1, hub.SendToUser("u1", Event{EventType: "x"}))
	assert.Len(t, a.Events, 1)
	assert.Len(t, b.Events, 0)

	// full buffer drops the event
	assert.Equal(t, 0, hub.SendToUser("u1", Event{EventType: "y"}))

	hub.Unregister("a")
	_, open := <-a.Events
	assert.True(t, open)
	_, open = <-a.Events
	assert.False(t, open)
}
