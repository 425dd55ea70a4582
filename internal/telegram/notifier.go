package telegram

import (
	"context"
	"fmt"

	"github.com/mixelka/clarify/internal/formatter"
	appmodels "github.com/mixelka/clarify/pkg/models"
)

// NotifyCaseCreated posts the new case into the topic of its team
func (b *Bot) NotifyCaseCreated(ctx context.Context, event *appmodels.CaseEvent) error {
	var (
		topicID  int
		teamName string
	)
	if b.teams != nil {
		team, err := b.teams.GetTeam(ctx, event.TeamID)
		if err != nil {
			// General topic is better than no announcement
			b.logger.Warn("failed to get team for notification", "team_id", event.TeamID, "error", err)
		} else {
			topicID = team.TelegramTopicID
			teamName = team.Name
		}
	}

	text := b.formatter.FormatCaseCreated(event, teamName)
	keyboard := formatter.BuildCaseKeyboard(b.caseURLBase, event.CaseID)

	tgMsg, err := b.sendMessageWithKeyboard(ctx, b.chatID, topicID, text, keyboard)
	if err != nil {
		return fmt.Errorf("failed to send case notification: %w", err)
	}

	b.logger.Info("case announced",
		"case_id", event.CaseID,
		"team_id", event.TeamID,
		"topic_id", topicID,
		"telegram_msg_id", tgMsg.ID,
	)
	return nil
}
