package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// State describes whether transmission is worth attempting right now.
type State int

const (
	// StateOnline: the link is up and the service answers.
	StateOnline State = iota
	// StateOffline: the host reports no usable network link. Uploads wait
	// instead of burning retry budget.
	StateOffline
	// StateUnstable: the link is up but the service does not answer probes.
	// Uploads proceed and rely on per-chunk retries.
	StateUnstable
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	case StateUnstable:
		return "unstable"
	default:
		return "unknown"
	}
}

// LinkStateFunc reports whether the host believes it has a network link at
// all, independent of service reachability. Nil means the link is assumed up.
type LinkStateFunc func() bool

// Monitor tracks connectivity for the upload loop.
type Monitor interface {
	CurrentState() State
	// Refresh re-evaluates connectivity immediately and returns the new state.
	Refresh(ctx context.Context) State
	// OnChange registers a callback invoked on every state transition.
	OnChange(func(State))
}

// Config ...
type Config struct {
	// ProbeURL is HEAD-requested to tell "link up but service unreachable"
	// apart from plain online. Empty disables active probing, in which case
	// the monitor only follows the passive link signal.
	ProbeURL string
	// ProbeTimeout bounds a single probe. Default: 5s.
	ProbeTimeout time.Duration
	// Interval is the periodic re-evaluation cadence of Start. Default: 30s.
	Interval time.Duration
	// LinkState is the passive link signal. Nil: link always up.
	LinkState LinkStateFunc
	// HTTPClient is used for probes. Default: a client with the probe timeout.
	HTTPClient *http.Client
}

type monitor struct {
	cfg        Config
	httpClient *http.Client
	logger     log.Logger

	mu        sync.Mutex
	state     State
	callbacks []func(State)
}

// NewMonitor creates a Monitor that starts out optimistically online; the
// first Refresh corrects it. Call Start to keep it evaluating periodically.
func NewMonitor(cfg Config, logger log.Logger) *monitor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.ProbeTimeout}
	}

	return &monitor{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		state:      StateOnline,
	}
}

// Start re-evaluates connectivity every Interval until ctx is cancelled.
func (m *monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Refresh(ctx)
			}
		}
	}()
}

// CurrentState returns the most recently evaluated state.
func (m *monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Refresh re-evaluates connectivity and returns the new state.
func (m *monitor) Refresh(ctx context.Context) State {
	state := m.evaluate(ctx)
	m.setState(state)
	return state
}

// OnChange registers a callback invoked on every state transition. Callbacks
// run on the goroutine that triggered the transition.
func (m *monitor) OnChange(callback func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *monitor) evaluate(ctx context.Context) State {
	if m.cfg.LinkState != nil && !m.cfg.LinkState() {
		return StateOffline
	}

	if m.cfg.ProbeURL == "" {
		return StateOnline
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		m.logger.Warnf("Invalid connectivity probe request: %s", err)
		return StateUnstable
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return StateUnstable
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			m.logger.Warnf("Failed to close response body: %s", err)
		}
	}()

	// Any HTTP response counts: even an error status proves the service is
	// reachable.
	return StateOnline
}

func (m *monitor) setState(next State) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	callbacks := make([]func(State), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	if prev == next {
		return
	}

	m.logger.Debugf("Connectivity changed: %s -> %s", prev, next)
	for _, callback := range callbacks {
		callback(next)
	}
}
