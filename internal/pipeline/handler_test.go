package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mixelka/clarify/internal/parser"
	"github.com/mixelka/clarify/internal/queue"
	"github.com/mixelka/clarify/pkg/models"
)

type fakeExtractor struct {
	res *models.ExtractionResult
	err error
}

func (f *fakeExtractor) ExtractDataFromEmail(ctx context.Context, msg *models.NormalizedMessage, teamID int64) (*models.ExtractionResult, error) {
	return f.res, f.err
}

type fakeCreator struct {
	err       error
	single    int
	bulkItems []parser.ListItem
}

func (f *fakeCreator) CreateClarificationFromEmail(ctx context.Context, msg *models.NormalizedMessage, res *models.ExtractionResult, teamID int64) (*models.ClarificationCase, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.single++
	return &models.ClarificationCase{ID: 1}, nil
}

func (f *fakeCreator) CreateBulkClarification(ctx context.Context, msg *models.NormalizedMessage, res *models.ExtractionResult, teamID int64, items []parser.ListItem) (*models.ClarificationCase, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bulkItems = items
	return &models.ClarificationCase{ID: 2, IsBulk: true}, nil
}

func eligible() *models.ExtractionResult {
	return &models.ExtractionResult{
		References:     models.References{DeliveryPoints: []string{"51234567890"}},
		Classification: models.Classification{Category: models.CategoryBilling},
		Confidence:     0.8,
	}
}

func entryWithBody(body string) *models.QueueEntry {
	return models.NewQueueEntry(1, &models.NormalizedMessage{UID: 5, Subject: "Question", Body: body})
}

func TestHandlerProcess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	listBody := "Please check:\n1. 51234567890 missing\n2. 51234567891 wrong\n3. 51234567892 duplicate"

	tests := []struct {
		name      string
		extractor *fakeExtractor
		creator   *fakeCreator
		body      string
		want      queue.OutcomeKind
		wantBulk  int
	}{
		{
			name:      "extraction error retries",
			extractor: &fakeExtractor{err: errors.New("model quota exceeded")},
			creator:   &fakeCreator{},
			want:      queue.OutcomeRetry,
		},
		{
			name:      "ineligible is skipped",
			extractor: &fakeExtractor{res: &models.ExtractionResult{Classification: models.Classification{Category: models.CategoryUnknown}, Confidence: 0.9}},
			creator:   &fakeCreator{},
			want:      queue.OutcomeSkipped,
		},
		{
			name:      "case error retries",
			extractor: &fakeExtractor{res: eligible()},
			creator:   &fakeCreator{err: errors.New("database is locked")},
			want:      queue.OutcomeRetry,
		},
		{
			name:      "single case",
			extractor: &fakeExtractor{res: eligible()},
			creator:   &fakeCreator{},
			body:      "Marktlokation 51234567890 is wrong",
			want:      queue.OutcomeCompleted,
		},
		{
			name:      "list becomes bulk case",
			extractor: &fakeExtractor{res: eligible()},
			creator:   &fakeCreator{},
			body:      listBody,
			want:      queue.OutcomeCompleted,
			wantBulk:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.extractor, tt.creator, 3, logger)
			got := h.Process(context.Background(), entryWithBody(tt.body))
			if got.Kind != tt.want {
				t.Errorf("Process() = %s (%s), want %s", got.Kind, got.Reason, tt.want)
			}
			if len(tt.creator.bulkItems) != tt.wantBulk {
				t.Errorf("bulk items = %d, want %d", len(tt.creator.bulkItems), tt.wantBulk)
			}
			if tt.want == queue.OutcomeCompleted && tt.wantBulk == 0 && tt.creator.single != 1 {
				t.Errorf("single cases = %d, want 1", tt.creator.single)
			}
		})
	}
}

type fakeEnqueuer struct {
	mu        sync.Mutex
	seen      map[uint32]bool
	bodies    []string
	processed []int64
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, teamID int64, msg *models.NormalizedMessage) (*models.QueueEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[uint32]bool)
	}
	if f.seen[msg.UID] {
		return nil, false, nil
	}
	f.seen[msg.UID] = true
	f.bodies = append(f.bodies, msg.Body)
	return &models.QueueEntry{ID: int64(msg.UID)}, true, nil
}

func (f *fakeEnqueuer) ProcessNow(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return true, nil
}

func TestSinkConvertsHTMLAndProcessesNewMessages(t *testing.T) {
	q := &fakeEnqueuer{}
	s := NewSink(q, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	msg := &models.NormalizedMessage{UID: 9, HTMLBody: "<p>Invoice&nbsp;51234567890</p>"}
	if err := s.HandleMessage(ctx, 1, msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := s.HandleMessage(ctx, 1, &models.NormalizedMessage{UID: 9, Body: "again"}); err != nil {
		t.Fatalf("duplicate HandleMessage() error = %v", err)
	}
	s.Close()

	if len(q.bodies) != 1 || q.bodies[0] != "Invoice 51234567890" {
		t.Errorf("queued bodies = %q", q.bodies)
	}
	if len(q.processed) != 1 || q.processed[0] != 9 {
		t.Errorf("processed = %v, want [9]", q.processed)
	}
}
