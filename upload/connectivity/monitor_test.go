package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
)

func TestRefreshOnlineWhenProbeAnswers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewMonitor(Config{ProbeURL: server.URL}, log.NewLogger())

	assert.Equal(t, StateOnline, m.Refresh(context.Background()))
	assert.Equal(t, StateOnline, m.CurrentState())
}

func TestRefreshErrorStatusStillCountsAsOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := NewMonitor(Config{ProbeURL: server.URL}, log.NewLogger())

	assert.Equal(t, StateOnline, m.Refresh(context.Background()))
}

func TestRefreshUnstableWhenProbeFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	probeURL := server.URL
	server.Close()

	m := NewMonitor(Config{ProbeURL: probeURL}, log.NewLogger())

	assert.Equal(t, StateUnstable, m.Refresh(context.Background()))
}

func TestRefreshOfflineWhenLinkIsDown(t *testing.T) {
	linkUp := false
	m := NewMonitor(Config{
		LinkState: func() bool { return linkUp },
	}, log.NewLogger())

	assert.Equal(t, StateOffline, m.Refresh(context.Background()))

	linkUp = true
	assert.Equal(t, StateOnline, m.Refresh(context.Background()))
}

func TestOfflineWinsOverProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("probe request sent while the link is down")
	}))
	defer server.Close()

	m := NewMonitor(Config{
		ProbeURL:  server.URL,
		LinkState: func() bool { return false },
	}, log.NewLogger())

	assert.Equal(t, StateOffline, m.Refresh(context.Background()))
}

func TestOnChangeFiresOnTransitionsOnly(t *testing.T) {
	linkUp := true
	m := NewMonitor(Config{
		LinkState: func() bool { return linkUp },
	}, log.NewLogger())

	var transitions []State
	m.OnChange(func(s State) {
		transitions = append(transitions, s)
	})

	m.Refresh(context.Background()) // online -> online: no callback
	linkUp = false
	m.Refresh(context.Background()) // -> offline
	m.Refresh(context.Background()) // offline -> offline: no callback
	linkUp = true
	m.Refresh(context.Background()) // -> online

	assert.Equal(t, []State{StateOffline, StateOnline}, transitions)
}

func TestNoProbeConfigured(t *testing.T) {
	m := NewMonitor(Config{}, log.NewLogger())

	assert.Equal(t, StateOnline, m.Refresh(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "online", StateOnline.String())
	assert.Equal(t, "offline", StateOffline.String())
	assert.Equal(t, "unstable", StateUnstable.String())
}
