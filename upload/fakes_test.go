package upload

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitrise-io/go-utils/v2/analytics"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/connectivity"
	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/network"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type fakeTracker struct {
	mu     sync.Mutex
	events []string
}

func (t *fakeTracker) Enqueue(eventName string, properties ...analytics.Properties) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, eventName)
}

func (t *fakeTracker) Wait() {}

func (t *fakeTracker) eventNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.events))
	copy(names, t.events)
	return names
}

// fakeMonitor reports offline for a scripted number of polls, then online.
type fakeMonitor struct {
	mu           sync.Mutex
	offlinePolls int
	polled       int
}

func (m *fakeMonitor) CurrentState() connectivity.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offlinePolls > 0 {
		m.offlinePolls--
		m.polled++
		return connectivity.StateOffline
	}
	return connectivity.StateOnline
}

func (m *fakeMonitor) Refresh(ctx context.Context) connectivity.State {
	return m.CurrentState()
}

func (m *fakeMonitor) OnChange(callback func(connectivity.State)) {}

// fakeAPI scripts the upload service. A nil behavior func falls back to
// unconditional success, with completion reported on the last chunk.
type fakeAPI struct {
	mu              sync.Mutex
	chunkCalls      []network.ChunkSubmitParams
	standardCalls   []network.StandardSubmitParams
	abortedSessions []string
	statusCalls     []string

	submitChunk    func(call int, params network.ChunkSubmitParams) (network.ChunkSubmitResult, error)
	submitStandard func(call int, params network.StandardSubmitParams) (network.StandardSubmitResult, error)
	sessionStatus  func(sessionID string) (network.SessionStatus, error)
}

func (a *fakeAPI) SubmitChunk(ctx context.Context, params network.ChunkSubmitParams) (network.ChunkSubmitResult, error) {
	a.mu.Lock()
	call := len(a.chunkCalls)
	a.chunkCalls = append(a.chunkCalls, params)
	fn := a.submitChunk
	a.mu.Unlock()

	if fn != nil {
		return fn(call, params)
	}
	return network.ChunkSubmitResult{
		Complete:       params.ChunkIndex == params.TotalChunks-1,
		FilePath:       "/uploads/" + params.FileName,
		ReceivedChunks: params.ChunkIndex + 1,
	}, nil
}

func (a *fakeAPI) SubmitStandard(ctx context.Context, params network.StandardSubmitParams) (network.StandardSubmitResult, error) {
	a.mu.Lock()
	call := len(a.standardCalls)
	a.standardCalls = append(a.standardCalls, params)
	fn := a.submitStandard
	a.mu.Unlock()

	if fn != nil {
		return fn(call, params)
	}
	return network.StandardSubmitResult{FilePath: "/uploads/" + params.FileName}, nil
}

func (a *fakeAPI) SessionStatus(ctx context.Context, sessionID string) (network.SessionStatus, error) {
	a.mu.Lock()
	a.statusCalls = append(a.statusCalls, sessionID)
	fn := a.sessionStatus
	a.mu.Unlock()

	if fn != nil {
		return fn(sessionID)
	}
	return network.SessionStatus{}, network.ErrSessionNotFound
}

func (a *fakeAPI) AbortSession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abortedSessions = append(a.abortedSessions, sessionID)
	return nil
}

func (a *fakeAPI) chunkCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunkCalls)
}

func (a *fakeAPI) chunkCallsCopy() []network.ChunkSubmitParams {
	a.mu.Lock()
	defer a.mu.Unlock()
	calls := make([]network.ChunkSubmitParams, len(a.chunkCalls))
	copy(calls, a.chunkCalls)
	return calls
}
