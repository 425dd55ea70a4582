package formatter

import (
	"fmt"
	"strings"

	"github.com/mixelka/clarify/internal/email"
	"github.com/mixelka/clarify/internal/scheduler"
	"github.com/mixelka/clarify/pkg/models"
)

// TelegramFormatter formats case notifications and bot replies for Telegram
type TelegramFormatter struct {
	maxLength int
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

// FormatCaseCreated formats the announcement of a new case
func (f *TelegramFormatter) FormatCaseCreated(event *models.CaseEvent, teamName string) string {
	var sb strings.Builder

	if event.IsBulk {
		sb.WriteString(fmt.Sprintf("<b>New bulk clarification #%d</b>\n\n", event.CaseID))
	} else {
		sb.WriteString(fmt.Sprintf("<b>New clarification #%d</b>\n\n", event.CaseID))
	}

	sb.WriteString(fmt.Sprintf("<b>Title:</b> %s\n", f.escapeHTML(f.truncate(event.Title, 300))))
	if teamName != "" {
		sb.WriteString(fmt.Sprintf("<b>Team:</b> %s\n", f.escapeHTML(teamName)))
	}
	if event.PartnerName != "" {
		sb.WriteString(fmt.Sprintf("<b>Partner:</b> %s\n", f.escapeHTML(event.PartnerName)))
	}
	sb.WriteString(fmt.Sprintf("<b>From:</b> %s\n", f.escapeHTML(event.Sender)))
	sb.WriteString(fmt.Sprintf("<b>Category:</b> %s | <b>Priority:</b> %s\n",
		f.escapeHTML(event.Category), f.priorityLabel(event.Priority)))
	sb.WriteString(fmt.Sprintf("<b>Status:</b> %s\n", f.escapeHTML(event.Status)))

	if event.References > 0 {
		sb.WriteString(fmt.Sprintf("<b>References:</b> %d\n", event.References))
	}
	if event.IsBulk {
		sb.WriteString(fmt.Sprintf("<b>Items:</b> %d\n", event.Items))
	}
	sb.WriteString(fmt.Sprintf("<b>Created:</b> %s", event.CreatedAt.Format("02.01.2006 15:04")))

	out := sb.String()
	if len([]rune(out)) > f.maxLength {
		out = string([]rune(out)[:f.maxLength])
	}
	return out
}

// FormatStatus formats the scheduler state and every team monitor
func (f *TelegramFormatter) FormatStatus(status scheduler.Status, teams []email.TeamStatus) string {
	var sb strings.Builder

	state := "stopped"
	if status.Running {
		state = "running"
	}
	sb.WriteString(fmt.Sprintf("<b>Ingestion:</b> %s\n", state))
	sb.WriteString(fmt.Sprintf("<b>Monitored:</b> %d of %d teams\n", len(status.MonitoredTeams), status.TotalTeams))

	if len(teams) == 0 {
		return sb.String()
	}

	sb.WriteString("\n")
	for _, t := range teams {
		sb.WriteString(fmt.Sprintf("%s Team %d: %s", stateEmoji(t.State), t.TeamID, t.State))
		if t.Watermark > 0 {
			sb.WriteString(fmt.Sprintf(", UID %d", t.Watermark))
		}
		if !t.LastPoll.IsZero() {
			sb.WriteString(fmt.Sprintf(", polled %s", t.LastPoll.Format("15:04:05")))
		}
		sb.WriteString("\n")
		if t.LastError != "" {
			sb.WriteString(fmt.Sprintf("   <code>%s</code>\n", f.escapeHTML(f.truncate(t.LastError, 200))))
		}
	}
	return sb.String()
}

func stateEmoji(state email.State) string {
	switch state {
	case email.StateMonitoring:
		return "🟢"
	case email.StateConnecting, email.StateReady:
		return "🟡"
	default:
		return "🔴"
	}
}

func (f *TelegramFormatter) priorityLabel(priority string) string {
	if priority == "urgent" || priority == "high" {
		return "<b>" + f.escapeHTML(priority) + "</b>"
	}
	return f.escapeHTML(priority)
}

// escapeHTML escapes HTML special characters for Telegram
func (f *TelegramFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate truncates text to maxLen characters
func (f *TelegramFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
