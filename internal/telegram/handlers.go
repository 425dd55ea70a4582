package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/clarify/internal/scheduler"
)

// handleStatus handles /status command
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.requireAdmin(ctx, msg) {
		return
	}

	b.replyStatus(ctx, msg)
}

// handleStartAll handles /startall command
func (b *Bot) handleStartAll(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.requireAdmin(ctx, msg) {
		return
	}

	if err := b.ctrl.Start(ctx); err != nil {
		b.logger.Error("failed to start scheduler", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, fmt.Sprintf("Start failed: <code>%s</code>", html.EscapeString(err.Error())))
		return
	}

	b.logger.Info("monitoring started from chat", "user_id", msg.From.ID)
	b.replyStatus(ctx, msg)
}

// handleStopAll handles /stopall command
func (b *Bot) handleStopAll(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.requireAdmin(ctx, msg) {
		return
	}

	b.ctrl.Stop()
	b.logger.Info("monitoring stopped from chat", "user_id", msg.From.ID)
	b.replyStatus(ctx, msg)
}

// handleAddTeam handles /addteam command
// Usage: /addteam team_id
func (b *Bot) handleAddTeam(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.requireAdmin(ctx, msg) {
		return
	}

	teamID, err := parseTeamID(msg.Text)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Usage: <code>/addteam 3</code>")
		return
	}

	err = b.ctrl.AddTeamMonitoring(ctx, teamID)
	switch {
	case errors.Is(err, scheduler.ErrNotRunning):
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Monitoring is stopped, use /startall first")
		return
	case errors.Is(err, scheduler.ErrTeamNotFound):
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, fmt.Sprintf("Team %d has no mailbox configuration", teamID))
		return
	case err != nil:
		b.logger.Error("failed to add team", "team_id", teamID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, fmt.Sprintf("Could not start team %d: <code>%s</code>", teamID, html.EscapeString(err.Error())))
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, fmt.Sprintf("Monitoring of team %d started", teamID))
}

// handleRemoveTeam handles /removeteam command
// Usage: /removeteam team_id
func (b *Bot) handleRemoveTeam(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.requireAdmin(ctx, msg) {
		return
	}

	teamID, err := parseTeamID(msg.Text)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Usage: <code>/removeteam 3</code>")
		return
	}

	b.ctrl.RemoveTeamMonitoring(teamID)
	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, fmt.Sprintf("Monitoring of team %d stopped", teamID))
}

func (b *Bot) replyStatus(ctx context.Context, msg *models.Message) {
	status, err := b.ctrl.GetStatus(ctx)
	if err != nil {
		b.logger.Error("failed to get status", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Could not read the monitoring status")
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, b.formatter.FormatStatus(status, b.ctrl.TeamStatus()))
}
