package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechief/rememberd/internal/api/ws"
	"github.com/thechief/rememberd/internal/domain/plugin"
	"github.com/thechief/rememberd/internal/domain/prefs"
	"github.com/thechief/rememberd/internal/domain/progress"
	"github.com/thechief/rememberd/internal/domain/session"
	"github.com/thechief/rememberd/internal/domain/store"
	"github.com/thechief/rememberd/internal/domain/wm"
	"github.com/thechief/rememberd/internal/infrastructure/config"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/shared/types"
)

type stubSource struct{ events chan wm.Event }

func (s *stubSource) Windows() []wm.Handle    { return nil }
func (s *stubSource) Events() <-chan wm.Event { return s.events }

type stubMonitors struct{ mon types.MonitorInfo }

func (m *stubMonitors) ByID(string) (types.MonitorInfo, bool)          { return types.MonitorInfo{}, false }
func (m *stubMonitors) ByConnector(string) (types.MonitorInfo, bool)   { return types.MonitorInfo{}, false }
func (m *stubMonitors) ByFingerprint(string) (types.MonitorInfo, bool) { return types.MonitorInfo{}, false }
func (m *stubMonitors) ByIndex(int) (types.MonitorInfo, bool)          { return types.MonitorInfo{}, false }
func (m *stubMonitors) Primary() types.MonitorInfo                     { return m.mon }
func (m *stubMonitors) All() []types.MonitorInfo                       { return []types.MonitorInfo{m.mon} }

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New(&store.MemoryBackend{}, 10*time.Millisecond, logging.NewNop(), nil)
	require.NoError(t, st.Load())

	prefsStore := prefs.NewStore("")
	tracker := progress.NewTracker()
	engine := session.NewEngine(session.Deps{
		Config:  config.Default(),
		Store:   st,
		Prefs:   prefsStore,
		Plugins: plugin.NewRegistry(),
		Filter:  wm.NewClassFilter(nil, prefsStore, nil),
		Source:  &stubSource{events: make(chan wm.Event)},
		Monitors: &stubMonitors{mon: types.MonitorInfo{
			ID: "EDID-1", Primary: true,
			Frame: types.Geometry{Width: 1920, Height: 1080},
		}},
		Tracker: tracker,
		Log:     logging.NewNop(),
	})

	handlers := NewHandlers(engine, tracker, prefsStore, st, "test")
	stream := ws.NewHandler(tracker, logging.NewNop())
	srv := NewServer("127.0.0.1:0", handlers, stream, logging.NewNop())

	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, st
}

func get(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthAndStatus(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = get(t, ts.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["tracked_windows"])
}

func TestListAppsReflectsStore(t *testing.T) {
	ts, st := newTestServer(t)
	st.SetApp(&types.AppRecord{Class: "Code", Instances: []*types.InstanceRecord{
		{ID: "inst_1", AbsoluteGeom: &types.Geometry{Width: 800, Height: 600}},
	}})

	code, body := get(t, ts.URL+"/apps")
	assert.Equal(t, http.StatusOK, code)
	apps := body["apps"].([]interface{})
	require.Len(t, apps, 1)
	app := apps[0].(map[string]interface{})
	assert.Equal(t, "Code", app["class"])
	assert.Equal(t, float64(1), app["instances"])
}

func TestLaunchUnknownClassIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/apps/nonexistent/launch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetPrefsRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	p := prefs.Defaults()
	p.ClampToScreen = false
	data, err := sonic.Marshal(p)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/prefs", strings.NewReader(string(data)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, body := get(t, ts.URL+"/prefs")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["clampToScreen"])
}
