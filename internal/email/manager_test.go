package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mixelka/clarify/pkg/models"
)

// fakeMailbox serves a fixed set of messages above the requested watermark
type fakeMailbox struct {
	mu         sync.Mutex
	connectErr error
	messages   []*RawMessage
	unseenOnly []bool
	closed     int
}

func (f *fakeMailbox) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeMailbox) SelectFolder(ctx context.Context, folder string) error { return nil }

func (f *fakeMailbox) FetchSince(ctx context.Context, watermark uint32, unseenOnly bool) ([]*RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unseenOnly = append(f.unseenOnly, unseenOnly)

	var out []*RawMessage
	for _, m := range f.messages {
		if m.UID > watermark {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMailbox) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeMailbox) fetchModes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.unseenOnly)
}

// recordingSink records handed UIDs and rejects one UID
type recordingSink struct {
	mu     sync.Mutex
	uids   []uint32
	failOn uint32
}

func (s *recordingSink) HandleMessage(ctx context.Context, teamID int64, msg *models.NormalizedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.UID == s.failOn {
		return errors.New("queue unavailable")
	}
	s.uids = append(s.uids, msg.UID)
	return nil
}

func (s *recordingSink) handed() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.uids)
}

type memoryWatermarks struct {
	mu    sync.Mutex
	marks map[int64]uint32
}

func (w *memoryWatermarks) AdvanceWatermark(ctx context.Context, teamID int64, uid uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.marks == nil {
		w.marks = make(map[int64]uint32)
	}
	if uid > w.marks[teamID] {
		w.marks[teamID] = uid
	}
	return nil
}

func (w *memoryWatermarks) get(teamID int64) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.marks[teamID]
}

func rawMessage(uid uint32) *RawMessage {
	data := fmt.Sprintf("From: partner@example.org\r\nTo: team@example.com\r\nSubject: Request %d\r\nContent-Type: text/plain\r\n\r\nBody %d\r\n", uid, uid)
	return &RawMessage{UID: uid, Data: []byte(data)}
}

func newTestManager(mb *fakeMailbox, sink Sink, store WatermarkStore) *Manager {
	m := NewManager(sink, store, nil, Options{
		PollInterval:   10 * time.Millisecond,
		ReconnectDelay: time.Hour,
		FetchTimeout:   time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.dial = func(cfg ClientConfig, logger *slog.Logger) Mailbox {
		return mb
	}
	return m
}

func testConfig(teamID int64) *models.TeamMailboxConfig {
	return &models.TeamMailboxConfig{
		TeamID:                teamID,
		Host:                  "imap.example.com",
		Port:                  993,
		UseTLS:                true,
		Username:              "team@example.com",
		PasswordEncrypted:     "secret",
		Folder:                "INBOX",
		FetchMode:             models.FetchUnseen,
		AutoProcessingEnabled: true,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerHandsMessagesInUIDOrder(t *testing.T) {
	mb := &fakeMailbox{messages: []*RawMessage{rawMessage(3), rawMessage(4), rawMessage(5)}}
	sink := &recordingSink{}
	store := &memoryWatermarks{}
	m := newTestManager(mb, sink, store)
	defer m.StopAll()

	cfg := testConfig(1)
	cfg.LastProcessedSequence = 3
	if err := m.StartTeamMonitoring(context.Background(), cfg); err != nil {
		t.Fatalf("StartTeamMonitoring() error = %v", err)
	}

	waitFor(t, "watermark 5", func() bool { return store.get(1) == 5 })
	waitFor(t, "monitoring state", func() bool {
		st := m.Status()
		return len(st) == 1 && st[0].State == StateMonitoring
	})

	if got := sink.handed(); !slices.Equal(got, []uint32{4, 5}) {
		t.Errorf("handed UIDs = %v, want [4 5]", got)
	}
	if st := m.Status()[0]; st.Watermark != 5 || st.LastPoll.IsZero() {
		t.Errorf("status = %+v, want watermark 5 and a poll time", st)
	}
	if modes := mb.fetchModes(); len(modes) == 0 || !modes[0] {
		t.Errorf("fetch modes = %v, want unseen only", modes)
	}
}

func TestManagerWatermarkModeFetchesAll(t *testing.T) {
	mb := &fakeMailbox{messages: []*RawMessage{rawMessage(1)}}
	m := newTestManager(mb, &recordingSink{}, &memoryWatermarks{})
	defer m.StopAll()

	cfg := testConfig(1)
	cfg.FetchMode = models.FetchWatermark
	if err := m.StartTeamMonitoring(context.Background(), cfg); err != nil {
		t.Fatalf("StartTeamMonitoring() error = %v", err)
	}

	waitFor(t, "first fetch", func() bool { return len(mb.fetchModes()) > 0 })
	if mb.fetchModes()[0] {
		t.Error("watermark mode fetched unseen only")
	}
}

func TestManagerDropsUnparseableMessage(t *testing.T) {
	broken := &RawMessage{UID: 2, Data: []byte("this line has no colon\r\n\r\nbody")}
	mb := &fakeMailbox{messages: []*RawMessage{rawMessage(1), broken, rawMessage(3)}}
	sink := &recordingSink{}
	store := &memoryWatermarks{}
	m := newTestManager(mb, sink, store)
	defer m.StopAll()

	if err := m.StartTeamMonitoring(context.Background(), testConfig(1)); err != nil {
		t.Fatalf("StartTeamMonitoring() error = %v", err)
	}

	waitFor(t, "watermark 3", func() bool { return store.get(1) == 3 })
	if got := sink.handed(); !slices.Equal(got, []uint32{1, 3}) {
		t.Errorf("handed UIDs = %v, want [1 3]", got)
	}
}

func TestManagerStopsBatchOnSinkFailure(t *testing.T) {
	mb := &fakeMailbox{messages: []*RawMessage{rawMessage(1), rawMessage(2), rawMessage(3)}}
	sink := &recordingSink{failOn: 2}
	store := &memoryWatermarks{}
	m := newTestManager(mb, sink, store)
	defer m.StopAll()

	if err := m.StartTeamMonitoring(context.Background(), testConfig(1)); err != nil {
		t.Fatalf("StartTeamMonitoring() error = %v", err)
	}

	waitFor(t, "watermark 1", func() bool { return store.get(1) == 1 })
	// Let a few more polls run into the same failure
	waitFor(t, "repeated polls", func() bool { return len(mb.fetchModes()) >= 3 })

	if got := sink.handed(); !slices.Equal(got, []uint32{1}) {
		t.Errorf("handed UIDs = %v, want [1]", got)
	}
	if store.get(1) != 1 {
		t.Errorf("watermark = %d, want 1", store.get(1))
	}
}

func TestManagerReportsConnectFailure(t *testing.T) {
	mb := &fakeMailbox{connectErr: errors.New("authentication failed")}
	m := newTestManager(mb, &recordingSink{}, &memoryWatermarks{})

	if err := m.StartTeamMonitoring(context.Background(), testConfig(7)); err != nil {
		t.Fatalf("StartTeamMonitoring() error = %v", err)
	}

	waitFor(t, "error state", func() bool {
		st := m.Status()
		return len(st) == 1 && st[0].State == StateError
	})
	if st := m.Status()[0]; st.LastError != "authentication failed" {
		t.Errorf("last error = %q, want authentication failed", st.LastError)
	}

	// Stopping must not wait for the reconnect delay
	done := make(chan struct{})
	go func() {
		m.StopTeam(7)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StopTeam() blocked on reconnect delay")
	}
	if m.IsMonitoring(7) {
		t.Error("team still monitored after StopTeam")
	}
}

func TestManagerStartStopIdempotent(t *testing.T) {
	mb := &fakeMailbox{}
	m := newTestManager(mb, &recordingSink{}, &memoryWatermarks{})
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		if err := m.StartTeamMonitoring(ctx, testConfig(id)); err != nil {
			t.Fatalf("StartTeamMonitoring(%d) error = %v", id, err)
		}
	}
	if err := m.StartTeamMonitoring(ctx, testConfig(1)); err != nil {
		t.Fatalf("second StartTeamMonitoring() error = %v", err)
	}

	if got := m.MonitoredTeams(); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("MonitoredTeams() = %v, want [1 2 3]", got)
	}

	m.StopTeam(2)
	m.StopTeam(2)
	m.StopTeam(42)
	if got := m.MonitoredTeams(); !slices.Equal(got, []int64{1, 3}) {
		t.Errorf("MonitoredTeams() after stop = %v, want [1 3]", got)
	}

	m.StopAll()
	m.StopAll()
	if got := m.MonitoredTeams(); len(got) != 0 {
		t.Errorf("MonitoredTeams() after StopAll = %v, want none", got)
	}
}

func TestManagerTestConnection(t *testing.T) {
	ok := newTestManager(&fakeMailbox{}, &recordingSink{}, &memoryWatermarks{})
	if err := ok.TestConnection(context.Background(), testConfig(1)); err != nil {
		t.Errorf("TestConnection() error = %v", err)
	}

	bad := newTestManager(&fakeMailbox{connectErr: errors.New("refused")}, &recordingSink{}, &memoryWatermarks{})
	if err := bad.TestConnection(context.Background(), testConfig(1)); err == nil {
		t.Error("TestConnection() error = nil, want refused")
	}
}
