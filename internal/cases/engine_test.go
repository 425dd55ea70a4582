package cases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/parser"
	"github.com/mixelka/clarify/pkg/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*models.CaseEvent
}

func (n *recordingNotifier) NotifyCaseCreated(ctx context.Context, event *models.CaseEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []*models.CaseEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*models.CaseEvent(nil), n.events...)
}

type staticDrafter struct{ err error }

func (d staticDrafter) SuggestReply(ctx context.Context, c *models.ClarificationCase, msg *models.NormalizedMessage, summary string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return "Dear partner, we are looking into it.", nil
}

// failingTx breaks the transaction at one step after the case row was written
type failingTx struct {
	Tx
	failAt string
}

func (tx failingTx) AddReference(ctx context.Context, r *models.CaseReference) error {
	if tx.failAt == "reference" {
		return errors.New("constraint violation")
	}
	return tx.Tx.AddReference(ctx, r)
}

func (tx failingTx) AddAudit(ctx context.Context, a *models.ExtractionAudit) error {
	if tx.failAt == "audit" {
		return errors.New("disk full")
	}
	return tx.Tx.AddAudit(ctx, a)
}

type failingStore struct {
	*SQLStore
	failAt string
}

func (s failingStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return s.SQLStore.Atomic(ctx, func(tx Tx) error {
		return fn(failingTx{Tx: tx, failAt: s.failAt})
	})
}

type testEnv struct {
	db       *database.DB
	engine   *Engine
	notifier *recordingNotifier
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.New("sqlite3", filepath.Join(t.TempDir(), "cases.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := db.UpsertTeam(ctx, &models.Team{ID: 1, Name: "Billing"}); err != nil {
		t.Fatalf("UpsertTeam() error = %v", err)
	}
	for _, s := range []*models.Specialist{
		{TeamID: 1, Name: "Anna", Email: "anna@example.com", Active: true},
		{TeamID: 1, Name: "Ben", Email: "ben@example.com", Active: true},
	} {
		if err := db.UpsertSpecialist(ctx, s, []string{CaseCategoryBilling}); err != nil {
			t.Fatalf("UpsertSpecialist() error = %v", err)
		}
	}

	env := &testEnv{
		db:       db,
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	env.engine = NewEngine(NewSQLStore(db), staticDrafter{}, env.notifier, Options{
		FollowUpDelay:     72 * time.Hour,
		EnrichmentTimeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	env.engine.now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := env.db.GetContext(context.Background(), &n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func billingMessage(uid uint32, sender string) *models.NormalizedMessage {
	return &models.NormalizedMessage{
		UID:     uid,
		Subject: "Invoice March",
		From:    models.Address{Name: "Billing Team", Address: sender},
		Date:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Body:    "Marktlokation 51234567890: the March invoice is too high.",
	}
}

func billingResult() *models.ExtractionResult {
	return &models.ExtractionResult{
		Partner: models.PartnerCandidate{Name: "Stadtwerke Nord GmbH", Domain: "sw-nord.de", Codes: []string{"9900001"}},
		References: models.References{
			DeliveryPoints: []string{"51234567890"},
			Periods:        []string{"03/2025"},
		},
		Classification: models.Classification{Category: models.CategoryBilling, Priority: "critical", Effort: "small"},
		Summary:        "Invoice for March disputed",
		NextSteps:      []string{"check meter reading"},
		Automation:     models.AutomationFlags{DraftResponse: true, ForwardingRequired: true, ForwardTo: "metering@example.com"},
		Confidence:     0.9,
	}
}

func TestCreateClarificationFromEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := billingResult()
	res.Automation.AutoHandle = true

	c, err := env.engine.CreateClarificationFromEmail(ctx, billingMessage(10, "billing@sw-nord.de"), res, 1)
	if err != nil {
		t.Fatalf("CreateClarificationFromEmail() error = %v", err)
	}

	stored, err := env.db.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase() error = %v", err)
	}
	if stored.Category != CaseCategoryBilling || stored.Priority != "urgent" || stored.Effort != "quick" {
		t.Errorf("mapped classification = %s/%s/%s", stored.Category, stored.Priority, stored.Effort)
	}
	if stored.Status != models.CaseInProgress || !stored.AutoCreated || stored.IsBulk {
		t.Errorf("case flags = status %s auto %v bulk %v", stored.Status, stored.AutoCreated, stored.IsBulk)
	}
	if stored.Title != "Invoice March" {
		t.Errorf("title = %q", stored.Title)
	}
	if stored.AssignedSpecialistID == nil {
		t.Fatal("case not assigned")
	}

	partner, err := env.db.GetPartner(ctx, *stored.PartnerID)
	if err != nil {
		t.Fatalf("GetPartner() error = %v", err)
	}
	if partner.NameKey != "stadtwerke nord" || partner.Domain != "sw-nord.de" || !partner.AutoCreated {
		t.Errorf("partner = %+v", partner)
	}

	refs, _ := env.db.ListCaseReferences(ctx, c.ID)
	if len(refs) != 2 {
		t.Errorf("references = %d, want 2", len(refs))
	}

	for table, want := range map[string]int{
		"extraction_audit": 1,
		"case_drafts":      1,
		"case_tasks":       1,
		"case_followups":   1,
		"case_activities":  3,
	} {
		if got := env.count(t, table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	var due time.Time
	env.db.GetContext(ctx, &due, "SELECT due_at FROM case_followups WHERE case_id = ?", c.ID)
	if !due.Equal(env.now.Add(72 * time.Hour)) {
		t.Errorf("follow-up due %v, want %v", due, env.now.Add(72*time.Hour))
	}

	events := env.notifier.Events()
	if len(events) != 1 || events[0].CaseID != c.ID || events[0].PartnerName != "Stadtwerke Nord GmbH" || events[0].References != 2 {
		t.Errorf("events = %+v", events)
	}
}

func TestCreateClarificationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := billingMessage(10, "billing@sw-nord.de")

	first, err := env.engine.CreateClarificationFromEmail(ctx, msg, billingResult(), 1)
	if err != nil {
		t.Fatalf("first create error = %v", err)
	}
	second, err := env.engine.CreateClarificationFromEmail(ctx, msg, billingResult(), 1)
	if err != nil {
		t.Fatalf("second create error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("second create returned case %d, want %d", second.ID, first.ID)
	}
	if n := env.count(t, "clarification_cases"); n != 1 {
		t.Errorf("cases = %d, want 1", n)
	}
	if n := len(env.notifier.Events()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestCreateClarificationRollsBackOnFailure(t *testing.T) {
	for _, failAt := range []string{"reference", "audit"} {
		t.Run(failAt, func(t *testing.T) {
			env := newTestEnv(t)
			env.engine.store = failingStore{SQLStore: NewSQLStore(env.db), failAt: failAt}

			_, err := env.engine.CreateClarificationFromEmail(context.Background(), billingMessage(10, "billing@sw-nord.de"), billingResult(), 1)
			if err == nil {
				t.Fatal("CreateClarificationFromEmail() error = nil, want failure")
			}

			for _, table := range []string{"clarification_cases", "case_references", "partners", "extraction_audit", "case_activities"} {
				if n := env.count(t, table); n != 0 {
					t.Errorf("%s rows = %d after rollback, want 0", table, n)
				}
			}
			if n := len(env.notifier.Events()); n != 0 {
				t.Errorf("notifications = %d, want 0", n)
			}
		})
	}
}

func TestCreateClarificationWithoutAutoHandleIsNotAssigned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.engine.CreateClarificationFromEmail(ctx, billingMessage(10, "billing@sw-nord.de"), billingResult(), 1)
	if err != nil {
		t.Fatalf("CreateClarificationFromEmail() error = %v", err)
	}

	stored, err := env.db.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase() error = %v", err)
	}
	if stored.Status != models.CaseOpen {
		t.Errorf("status = %s, want %s", stored.Status, models.CaseOpen)
	}
	if stored.AssignedSpecialistID != nil {
		t.Errorf("case assigned to specialist %d without auto-handle", *stored.AssignedSpecialistID)
	}

	var assigned int
	if err := env.db.GetContext(ctx, &assigned, "SELECT COUNT(*) FROM case_activities WHERE case_id = ? AND kind = ?", c.ID, models.ActivityAssigned); err != nil {
		t.Fatalf("count activities: %v", err)
	}
	if assigned != 0 {
		t.Errorf("assigned activities = %d, want 0", assigned)
	}
	// Draft and forward still run
	if n := env.count(t, "case_activities"); n != 2 {
		t.Errorf("activities = %d, want 2", n)
	}
}

func TestCreateClarificationAssignsLeastLoadedSpecialist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := billingResult()
	res.Automation.AutoHandle = true

	first, _ := env.engine.CreateClarificationFromEmail(ctx, billingMessage(10, "billing@sw-nord.de"), res, 1)
	second, _ := env.engine.CreateClarificationFromEmail(ctx, billingMessage(11, "billing@sw-nord.de"), res, 1)
	if first == nil || second == nil {
		t.Fatal("case creation failed")
	}

	a, _ := env.db.GetCase(ctx, first.ID)
	b, _ := env.db.GetCase(ctx, second.ID)
	if a.AssignedSpecialistID == nil || b.AssignedSpecialistID == nil {
		t.Fatal("cases not assigned")
	}
	if *a.AssignedSpecialistID == *b.AssignedSpecialistID {
		t.Errorf("both cases assigned to specialist %d", *a.AssignedSpecialistID)
	}
	if *a.AssignedSpecialistID > *b.AssignedSpecialistID {
		t.Errorf("tie not broken by lowest id: first=%d second=%d", *a.AssignedSpecialistID, *b.AssignedSpecialistID)
	}
}

func TestCreateClarificationSurvivesEnrichmentFailure(t *testing.T) {
	env := newTestEnv(t)
	env.engine.drafter = staticDrafter{err: errors.New("quota")}

	c, err := env.engine.CreateClarificationFromEmail(context.Background(), billingMessage(10, "billing@sw-nord.de"), billingResult(), 1)
	if err != nil {
		t.Fatalf("CreateClarificationFromEmail() error = %v", err)
	}
	if c.ID == 0 || env.count(t, "case_drafts") != 0 {
		t.Errorf("case %d, drafts %d", c.ID, env.count(t, "case_drafts"))
	}
	if n := len(env.notifier.Events()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestPartnerResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, _ := env.engine.CreateClarificationFromEmail(ctx, billingMessage(10, "billing@sw-nord.de"), billingResult(), 1)

	// Same domain, different wording of the name
	res := billingResult()
	res.Partner.Name = "SW Nord"
	second, _ := env.engine.CreateClarificationFromEmail(ctx, billingMessage(11, "info@sw-nord.de"), res, 1)

	// Free mail sender, name only
	res = billingResult()
	res.Partner = models.PartnerCandidate{Name: "Stadtwerke Nord"}
	third, _ := env.engine.CreateClarificationFromEmail(ctx, billingMessage(12, "someone@gmail.com"), res, 1)

	if first == nil || second == nil || third == nil {
		t.Fatal("case creation failed")
	}
	if *second.PartnerID != *first.PartnerID || *third.PartnerID != *first.PartnerID {
		t.Errorf("partners = %d/%d/%d, want one partner", *first.PartnerID, *second.PartnerID, *third.PartnerID)
	}
	if n := env.count(t, "partners"); n != 1 {
		t.Errorf("partners = %d, want 1", n)
	}

	// Unknown organization on free mail is created without the provider domain
	res = billingResult()
	res.Partner = models.PartnerCandidate{Name: "Netzbetrieb Süd AG", Domain: "gmail.com"}
	fourth, _ := env.engine.CreateClarificationFromEmail(ctx, billingMessage(13, "someone@gmail.com"), res, 1)
	p, err := env.db.GetPartner(ctx, *fourth.PartnerID)
	if err != nil {
		t.Fatalf("GetPartner() error = %v", err)
	}
	if p.Domain != "" || p.NameKey != "netzbetrieb sud" {
		t.Errorf("partner = %+v", p)
	}
}

func TestCreateBulkClarification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	items := []parser.ListItem{
		{Position: 1, Text: "51234567890 missing reading", ReferenceType: models.RefDeliveryPoint, ReferenceValue: "51234567890"},
		{Position: 2, Text: "51234567891 wrong tariff", ReferenceType: models.RefDeliveryPoint, ReferenceValue: "51234567891"},
		{Position: 3, Text: "51234567892 duplicate", ReferenceType: models.RefDeliveryPoint, ReferenceValue: "51234567892"},
	}
	res := billingResult()
	res.Automation = models.AutomationFlags{AutoHandle: true}

	c, err := env.engine.CreateBulkClarification(ctx, billingMessage(20, "billing@sw-nord.de"), res, 1, items)
	if err != nil {
		t.Fatalf("CreateBulkClarification() error = %v", err)
	}
	if !c.IsBulk || c.Status != models.CaseInProgress {
		t.Errorf("bulk %v status %s", c.IsBulk, c.Status)
	}
	if c.Title != "Bulk request (3 items): Invoice March" {
		t.Errorf("title = %q", c.Title)
	}

	stored, _ := env.db.ListCaseItems(ctx, c.ID)
	if len(stored) != 3 || stored[2].ReferenceValue != "51234567892" {
		t.Errorf("items = %+v", stored)
	}
	if ev := env.notifier.Events(); len(ev) != 1 || ev[0].Items != 3 {
		t.Errorf("events = %+v", ev)
	}

	if _, err := env.engine.CreateBulkClarification(ctx, billingMessage(21, "billing@sw-nord.de"), res, 1, nil); err == nil {
		t.Error("bulk without items accepted")
	}
}

func TestIsEligible(t *testing.T) {
	withRef := models.References{CaseNumbers: []string{"A-1234"}}

	tests := []struct {
		name string
		res  *models.ExtractionResult
		want bool
	}{
		{"nil", nil, false},
		{"reference and confidence", &models.ExtractionResult{References: withRef, Classification: models.Classification{Category: models.CategoryUnknown}, Confidence: 0.5}, true},
		{"category only", &models.ExtractionResult{Classification: models.Classification{Category: models.CategoryOther}, Confidence: 0.3}, true},
		{"unknown without references", &models.ExtractionResult{Classification: models.Classification{Category: models.CategoryUnknown}, Confidence: 0.9}, false},
		{"low confidence", &models.ExtractionResult{References: withRef, Classification: models.Classification{Category: models.CategoryBilling}, Confidence: 0.29}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEligible(tt.res); got != tt.want {
				t.Errorf("IsEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNameKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Stadtwerke Nord GmbH", "stadtwerke nord"},
		{"STADTWERKE  NORD", "stadtwerke nord"},
		{"Netzbetrieb Süd GmbH & Co. KG", "netzbetrieb sud"},
		{"Straßen-Energie AG", "strassen energie"},
		{"AG", "ag"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NameKey(tt.in); got != tt.want {
			t.Errorf("NameKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassificationMapping(t *testing.T) {
	if got := mapCategory(models.CategorySwitching); got != CaseCategorySupplierSwitch {
		t.Errorf("switching -> %s", got)
	}
	if got := mapCategory(models.CategoryOther); got != CaseCategoryGeneral {
		t.Errorf("other -> %s", got)
	}
	if got := mapPriority("whatever"); got != "medium" {
		t.Errorf("priority default -> %s", got)
	}
	if got := mapEffort("large"); got != "extended" {
		t.Errorf("large -> %s", got)
	}
}
