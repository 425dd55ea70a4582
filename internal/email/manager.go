// Package email keeps one IMAP monitor per team and hands new messages to the queue.
package email

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mixelka/clarify/internal/backoff"
	"github.com/mixelka/clarify/pkg/models"
)

// State is the connection state of a team monitor
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateMonitoring   State = "monitoring"
	StateError        State = "error"
)

// Sink receives normalized messages in UID order
type Sink interface {
	HandleMessage(ctx context.Context, teamID int64, msg *models.NormalizedMessage) error
}

// WatermarkStore persists the highest UID handed to the sink
type WatermarkStore interface {
	AdvanceWatermark(ctx context.Context, teamID int64, uid uint32) error
}

// DecryptFunc decrypts a stored mailbox password
type DecryptFunc func(encrypted string) (string, error)

// Options configures the manager
type Options struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	FetchTimeout   time.Duration
}

// TeamStatus is the reported state of one team monitor
type TeamStatus struct {
	TeamID    int64     `json:"teamId"`
	State     State     `json:"state"`
	LastError string    `json:"lastError,omitempty"`
	Watermark uint32    `json:"watermark"`
	LastPoll  time.Time `json:"lastPoll,omitempty"`
}

// Manager manages all mailbox connections
type Manager struct {
	sink      Sink
	store     WatermarkStore
	decrypt   DecryptFunc
	opts      Options
	reconnect backoff.Policy
	logger    *slog.Logger

	dial func(cfg ClientConfig, logger *slog.Logger) Mailbox

	mu       sync.Mutex
	monitors map[int64]*monitor
}

type monitor struct {
	cfg    models.TeamMailboxConfig
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	lastErr   string
	watermark uint32
	lastPoll  time.Time
}

// NewManager creates a new mailbox manager
func NewManager(sink Sink, store WatermarkStore, decrypt DecryptFunc, opts Options, logger *slog.Logger) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 2 * time.Minute
	}
	return &Manager{
		sink:      sink,
		store:     store,
		decrypt:   decrypt,
		opts:      opts,
		reconnect: backoff.Fixed(opts.ReconnectDelay, 0),
		logger:    logger.With("component", "email_manager"),
		dial: func(cfg ClientConfig, logger *slog.Logger) Mailbox {
			return NewClient(cfg, logger)
		},
		monitors: make(map[int64]*monitor),
	}
}

// StartTeamMonitoring starts the monitor of a team; a running monitor is left alone
func (m *Manager) StartTeamMonitoring(ctx context.Context, cfg *models.TeamMailboxConfig) error {
	if m.IsMonitoring(cfg.TeamID) {
		return nil
	}

	clientCfg, err := m.clientConfig(ctx, cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.monitors[cfg.TeamID]; exists {
		return nil
	}

	monCtx, cancel := context.WithCancel(context.Background())
	mon := &monitor{
		cfg:       *cfg,
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    m.logger.With("team_id", cfg.TeamID),
		state:     StateDisconnected,
		watermark: cfg.LastProcessedSequence,
	}
	m.monitors[cfg.TeamID] = mon

	go m.run(monCtx, mon, clientCfg)

	m.logger.Info("team monitoring started", "team_id", cfg.TeamID, "server", clientCfg.address(), "mode", cfg.FetchMode)
	return nil
}

func (m *Manager) clientConfig(ctx context.Context, cfg *models.TeamMailboxConfig) (ClientConfig, error) {
	password := cfg.PasswordEncrypted
	if m.decrypt != nil {
		var err error
		if password, err = m.decrypt(cfg.PasswordEncrypted); err != nil {
			return ClientConfig{}, fmt.Errorf("failed to decrypt mailbox password: %w", err)
		}
	}

	host, port, useTLS := cfg.Host, cfg.Port, cfg.UseTLS
	if host == "" {
		var err error
		if host, port, err = ResolveIMAPServer(ctx, cfg.Username); err != nil {
			return ClientConfig{}, fmt.Errorf("failed to resolve IMAP server: %w", err)
		}
		useTLS = port == 993
	}
	if port == 0 {
		port = 993
	}

	return ClientConfig{
		Host:           host,
		Port:           port,
		UseTLS:         useTLS,
		Username:       cfg.Username,
		Password:       password,
		DialTimeout:    m.opts.DialTimeout,
		CommandTimeout: m.opts.FetchTimeout,
	}, nil
}

// run keeps a session alive until the monitor is stopped
func (m *Manager) run(ctx context.Context, mon *monitor, cfg ClientConfig) {
	defer close(mon.done)

	for {
		err := m.session(ctx, mon, cfg)
		if ctx.Err() != nil {
			mon.setState(StateDisconnected, nil)
			return
		}

		mon.setState(StateError, err)
		mon.logger.Error("mailbox session failed", "error", err, "retry_in", m.reconnect.Delay(0))

		if err := backoff.Wait(ctx, m.reconnect.Delay(0)); err != nil {
			mon.setState(StateDisconnected, nil)
			return
		}
	}
}

// session connects, catches up and polls until an error or cancellation
func (m *Manager) session(ctx context.Context, mon *monitor, cfg ClientConfig) error {
	mon.setState(StateConnecting, nil)

	mb := m.dial(cfg, mon.logger)
	if err := mb.Connect(ctx); err != nil {
		return err
	}
	defer mb.Close()

	mon.setState(StateReady, nil)
	if err := mb.SelectFolder(ctx, mon.cfg.Folder); err != nil {
		return err
	}

	if err := m.poll(ctx, mon, mb); err != nil {
		return err
	}
	mon.setState(StateMonitoring, nil)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.poll(ctx, mon, mb); err != nil {
				return err
			}
		}
	}
}

// poll fetches new messages and hands them to the sink in UID order.
// A message that cannot be parsed is dropped but still moves the watermark;
// a sink failure stops the batch so the message is fetched again next time.
func (m *Manager) poll(ctx context.Context, mon *monitor, mb Mailbox) error {
	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()

	watermark := mon.currentWatermark()
	unseenOnly := mon.cfg.FetchMode != models.FetchWatermark

	raws, err := mb.FetchSince(fetchCtx, watermark, unseenOnly)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	mon.touch()

	highest := watermark
	for _, raw := range raws {
		if raw.UID <= highest {
			continue
		}

		msg, err := ParseMessage(raw.UID, bytes.NewReader(raw.Data))
		if err != nil {
			mon.logger.Warn("dropping unparseable message", "uid", raw.UID, "error", err)
			highest = raw.UID
			continue
		}

		if err := m.sink.HandleMessage(ctx, mon.cfg.TeamID, msg); err != nil {
			mon.logger.Error("failed to hand off message, stopping batch", "uid", raw.UID, "error", err)
			break
		}
		highest = raw.UID
	}

	if highest > watermark {
		mon.setWatermark(highest)
		if err := m.store.AdvanceWatermark(ctx, mon.cfg.TeamID, highest); err != nil {
			mon.logger.Error("failed to persist watermark", "uid", highest, "error", err)
		}
		mon.logger.Info("fetched new messages", "count", len(raws), "watermark", highest)
	}
	return nil
}

// StopTeam stops a team monitor and waits for it to exit; unknown teams are ignored
func (m *Manager) StopTeam(teamID int64) {
	m.mu.Lock()
	mon, exists := m.monitors[teamID]
	delete(m.monitors, teamID)
	m.mu.Unlock()

	if !exists {
		return
	}

	mon.cancel()
	<-mon.done
	m.logger.Info("team monitoring stopped", "team_id", teamID)
}

// StopAll stops every monitor
func (m *Manager) StopAll() {
	m.mu.Lock()
	monitors := m.monitors
	m.monitors = make(map[int64]*monitor)
	m.mu.Unlock()

	for _, mon := range monitors {
		mon.cancel()
	}
	for _, mon := range monitors {
		<-mon.done
	}

	if len(monitors) > 0 {
		m.logger.Info("all team monitors stopped", "count", len(monitors))
	}
}

// IsMonitoring reports whether a monitor runs for the team
func (m *Manager) IsMonitoring(teamID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.monitors[teamID]
	return ok
}

// MonitoredTeams returns the IDs of all monitored teams in ascending order
func (m *Manager) MonitoredTeams() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.monitors))
	for id := range m.monitors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Status returns the state of every monitor ordered by team
func (m *Manager) Status() []TeamStatus {
	m.mu.Lock()
	monitors := make([]*monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		monitors = append(monitors, mon)
	}
	m.mu.Unlock()

	out := make([]TeamStatus, 0, len(monitors))
	for _, mon := range monitors {
		out = append(out, mon.status())
	}
	slices.SortFunc(out, func(a, b TeamStatus) int {
		return cmp.Compare(a.TeamID, b.TeamID)
	})
	return out
}

// TestConnection checks that the mailbox of cfg can be opened
func (m *Manager) TestConnection(ctx context.Context, cfg *models.TeamMailboxConfig) error {
	clientCfg, err := m.clientConfig(ctx, cfg)
	if err != nil {
		return err
	}

	mb := m.dial(clientCfg, m.logger)
	if err := mb.Connect(ctx); err != nil {
		return err
	}
	defer mb.Close()

	return mb.SelectFolder(ctx, cfg.Folder)
}

func (mon *monitor) setState(state State, err error) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	if mon.state != state {
		mon.logger.Debug("monitor state", "from", mon.state, "to", state)
	}
	mon.state = state
	if err != nil {
		mon.lastErr = err.Error()
	} else if state == StateMonitoring {
		mon.lastErr = ""
	}
}

func (mon *monitor) currentWatermark() uint32 {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.watermark
}

func (mon *monitor) setWatermark(uid uint32) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	if uid > mon.watermark {
		mon.watermark = uid
	}
}

func (mon *monitor) touch() {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.lastPoll = time.Now().UTC()
}

func (mon *monitor) status() TeamStatus {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return TeamStatus{
		TeamID:    mon.cfg.TeamID,
		State:     mon.state,
		LastError: mon.lastErr,
		Watermark: mon.watermark,
		LastPoll:  mon.lastPoll,
	}
}
