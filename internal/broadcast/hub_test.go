package broadcast

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

type fakeSource struct {
	snap model.Snapshot
}

func (f *fakeSource) Snapshot() model.Snapshot {
	return f.snap
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func testSource() *fakeSource {
	return &fakeSource{snap: model.Snapshot{
		Services: []model.ServiceSnapshot{{
			Definition: model.ServiceDefinition{Key: "db", DisplayName: "Database", ContainerRef: "pilotpros-postgres", Critical: true, MaxRestarts: 3},
			State:      model.ServiceState{Status: model.StatusRunning, Health: model.HealthHealthy},
		}},
		Overall:   model.OverallOperational,
		Timestamp: time.Now(),
	}}
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_InitialSnapshot(t *testing.T) {
	hub := NewHub(testSource(), nil, time.Hour)
	conn := dial(t, hub)

	env := readEnvelope(t, conn)
	assert.Equal(t, EventStatusUpdate, env.Event)

	var status struct {
		Overall  string `json:"overall"`
		Services []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Health string `json:"health"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "operational", status.Overall)
	require.Len(t, status.Services, 1)
	assert.Equal(t, "db", status.Services[0].ID)
	assert.Equal(t, "running", status.Services[0].Status)
	assert.Equal(t, "healthy", status.Services[0].Health)
	assert.Equal(t, 1, hub.Clients())
}

func TestHub_RefreshStatus(t *testing.T) {
	hub := NewHub(testSource(), nil, time.Hour)
	conn := dial(t, hub)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Event: EventRefreshStatus}))
	env := readEnvelope(t, conn)
	assert.Equal(t, EventStatusUpdate, env.Event)
}

func TestHub_UnknownClientEventIgnored(t *testing.T) {
	hub := NewHub(testSource(), nil, time.Hour)
	conn := dial(t, hub)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Event: "bogus"}))
	require.NoError(t, conn.WriteJSON(Message{Event: EventRefreshStatus}))
	env := readEnvelope(t, conn)
	assert.Equal(t, EventStatusUpdate, env.Event)
}

func TestHub_PublishProgressAndEvent(t *testing.T) {
	hub := NewHub(testSource(), nil, time.Hour)
	conn := dial(t, hub)
	readEnvelope(t, conn)

	hub.PublishProgress(model.RestartProgress{ServiceID: "db", Phase: model.PhaseHealthCheck, Progress: 66, Message: "checking health (2/5)"})
	hub.PublishEvent(model.Event{ID: "e1", Timestamp: time.Now(), Level: model.LevelCritical, Message: "db exceeded max restarts"})

	env := readEnvelope(t, conn)
	assert.Equal(t, EventRestartProgress, env.Event)
	var progress struct {
		ServiceID string `json:"serviceId"`
		Phase     string `json:"phase"`
		Progress  int    `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.Equal(t, "db", progress.ServiceID)
	assert.Equal(t, "health-check", progress.Phase)
	assert.Equal(t, 66, progress.Progress)

	env = readEnvelope(t, conn)
	assert.Equal(t, EventNewEvent, env.Event)
	var event struct {
		ID      string `json:"id"`
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &event))
	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, "critical", event.Level)
}

func TestHub_RunBroadcastsCachedSnapshot(t *testing.T) {
	hub := NewHub(testSource(), nil, 20*time.Millisecond)
	conn := dial(t, hub)
	readEnvelope(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		env := readEnvelope(t, conn)
		assert.Equal(t, EventStatusUpdate, env.Event)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, 0, hub.Clients())
}

func TestHub_CloseWithoutClients(t *testing.T) {
	hub := NewHub(testSource(), nil, 0)
	assert.Equal(t, DefaultInterval, hub.interval)
	hub.Close()
	hub.BroadcastStatus()
	assert.Equal(t, 0, hub.Clients())
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(testSource(), nil, time.Hour)
	slow := &client{id: "slow", hub: hub, send: make(chan []byte, 1)}
	hub.register(slow)
	require.Equal(t, 1, hub.Clients())

	hub.BroadcastStatus()
	assert.Equal(t, 1, hub.Clients())

	// 缓冲已满, 下一次推送断开该订阅者
	hub.BroadcastStatus()
	assert.Equal(t, 0, hub.Clients())

	_, ok := <-slow.send
	assert.True(t, ok, "buffered message is still delivered")
	_, ok = <-slow.send
	assert.False(t, ok, "send channel is closed after the drop")

	assert.NotPanics(t, func() {
		hub.PublishEvent(model.Event{ID: "after-drop"})
		hub.Close()
	})
}

func TestHub_InterleavedProgress(t *testing.T) {
	hub := NewHub(testSource(), nil, time.Hour)
	conn := dial(t, hub)
	readEnvelope(t, conn)

	const steps = 10
	var wg sync.WaitGroup
	for _, id := range []string{"db", "engine"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 1; i <= steps; i++ {
				hub.PublishProgress(model.RestartProgress{ServiceID: id, Phase: model.PhaseHealthCheck, Progress: i * 10})
			}
		}(id)
	}
	wg.Wait()

	seen := map[string][]int{}
	for i := 0; i < 2*steps; i++ {
		env := readEnvelope(t, conn)
		require.Equal(t, EventRestartProgress, env.Event)
		var p struct {
			ServiceID string `json:"serviceId"`
			Progress  int    `json:"progress"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &p))
		seen[p.ServiceID] = append(seen[p.ServiceID], p.Progress)
	}

	want := make([]int, 0, steps)
	for i := 1; i <= steps; i++ {
		want = append(want, i*10)
	}
	assert.Equal(t, want, seen["db"])
	assert.Equal(t, want, seen["engine"])
}
