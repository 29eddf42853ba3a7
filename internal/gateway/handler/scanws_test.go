package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverscope/internal/push"
	"coverscope/internal/registry"
	"coverscope/internal/scanjob"
)

func dialScanWS(t *testing.T, srv *httptest.Server, projectID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?project_id=" + projectID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestScanWSSendsSnapshotFirst(t *testing.T) {
	reg := registry.NewMemory()
	state := reg.Allocate("demo")
	require.True(t, reg.SetScanStatus(state.ProjectID, scanjob.Status{Phase: scanjob.PhaseRunning}))

	hub := push.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(NewScanSocketHandler(hub, reg).HandleScanWS))
	defer srv.Close()

	conn := dialScanWS(t, srv, state.ProjectID)

	var first scanjob.StatusUpdate
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, state.ProjectID, first.ProjectID)
	assert.Equal(t, scanjob.PhaseRunning, first.Status.Phase)
}

func TestScanWSStreamNeverRepeatsOrRegresses(t *testing.T) {
	reg := registry.NewMemory()
	state := reg.Allocate("demo")
	require.True(t, reg.SetScanStatus(state.ProjectID, scanjob.Status{Phase: scanjob.PhaseRunning}))

	hub := push.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(NewScanSocketHandler(hub, reg).HandleScanWS))
	defer srv.Close()

	conn := dialScanWS(t, srv, state.ProjectID)

	// The snapshot arriving proves the handler has subscribed, so the pushes
	// below land in the subscription buffer.
	var first scanjob.StatusUpdate
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, scanjob.PhaseRunning, first.Status.Phase)

	// Stale and repeated phases must be swallowed; only the advance reaches
	// the client.
	hub.Publish(scanjob.StatusUpdate{ProjectID: state.ProjectID, Status: scanjob.Status{Phase: scanjob.PhaseQueued}})
	hub.Publish(scanjob.StatusUpdate{ProjectID: state.ProjectID, Status: scanjob.Status{Phase: scanjob.PhaseRunning}})
	hub.Publish(scanjob.StatusUpdate{ProjectID: state.ProjectID, Status: scanjob.Status{
		Phase:        scanjob.PhaseFinished,
		Dependencies: 3,
		Vulnerable:   1,
	}})

	var second scanjob.StatusUpdate
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, scanjob.PhaseFinished, second.Status.Phase)
	assert.Equal(t, 3, second.Status.Dependencies)
	assert.Equal(t, 1, second.Status.Vulnerable)
}

func TestScanWSRequiresProjectID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(NewScanSocketHandler(push.NewHub(), registry.NewMemory()).HandleScanWS))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
