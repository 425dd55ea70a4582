package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/mixelka/clarify/internal/email"
	"github.com/mixelka/clarify/internal/scheduler"
	"github.com/mixelka/clarify/pkg/models"
)

func TestFormatCaseCreated(t *testing.T) {
	f := NewTelegramFormatter()
	event := &models.CaseEvent{
		CaseID:      42,
		TeamID:      1,
		Title:       "Invoice <draft> & correction",
		Category:    "billing",
		Priority:    "urgent",
		Status:      "open",
		PartnerName: "Stadtwerke Nord",
		Sender:      "Billing <billing@sw-nord.de>",
		References:  2,
		CreatedAt:   time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
	}

	out := f.FormatCaseCreated(event, "Billing Team")

	for _, want := range []string{
		"<b>New clarification #42</b>",
		"Invoice &lt;draft&gt; &amp; correction",
		"<b>Team:</b> Billing Team",
		"<b>Partner:</b> Stadtwerke Nord",
		"Billing &lt;billing@sw-nord.de&gt;",
		"<b>Priority:</b> <b>urgent</b>",
		"<b>References:</b> 2",
		"02.03.2026 09:15",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Items") {
		t.Error("single case shows an item count")
	}
}

func TestFormatBulkCase(t *testing.T) {
	f := NewTelegramFormatter()
	out := f.FormatCaseCreated(&models.CaseEvent{CaseID: 7, IsBulk: true, Items: 5, Priority: "medium"}, "")

	if !strings.Contains(out, "bulk clarification #7") || !strings.Contains(out, "<b>Items:</b> 5") {
		t.Errorf("bulk output = %q", out)
	}
	if strings.Contains(out, "Team:") || strings.Contains(out, "Partner:") {
		t.Errorf("empty team or partner rendered: %q", out)
	}
}

func TestFormatStatus(t *testing.T) {
	f := NewTelegramFormatter()
	out := f.FormatStatus(
		scheduler.Status{Running: true, MonitoredTeams: []int64{1, 2}, TotalTeams: 3},
		[]email.TeamStatus{
			{TeamID: 1, State: email.StateMonitoring, Watermark: 120},
			{TeamID: 2, State: email.StateError, LastError: "login <failed>"},
		},
	)

	for _, want := range []string{
		"<b>Ingestion:</b> running",
		"2 of 3 teams",
		"🟢 Team 1: monitoring, UID 120",
		"🔴 Team 2: error",
		"<code>login &lt;failed&gt;</code>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBuildCaseKeyboard(t *testing.T) {
	if kb := BuildCaseKeyboard("", 1); kb != nil {
		t.Errorf("keyboard without base URL = %+v, want nil", kb)
	}

	tests := []struct {
		base string
		want string
	}{
		{"https://cases.example.com/cases", "https://cases.example.com/cases/9"},
		{"https://cases.example.com/cases/", "https://cases.example.com/cases/9"},
	}
	for _, tt := range tests {
		kb := BuildCaseKeyboard(tt.base, 9)
		if kb == nil || len(kb.InlineKeyboard) != 1 || kb.InlineKeyboard[0][0].URL != tt.want {
			t.Errorf("BuildCaseKeyboard(%q) = %+v, want URL %s", tt.base, kb, tt.want)
		}
	}
}
