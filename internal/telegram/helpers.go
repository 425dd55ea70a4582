package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// isUserAdmin checks if a user is an admin in the chat
func (b *Bot) isUserAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	// Use separate context with timeout to avoid blocking
	apiCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	member, err := b.api.GetChatMember(apiCtx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return false, err
	}

	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator:
		return true, nil
	default:
		return false, nil
	}
}

// requireAdmin answers and returns false unless the sender administers the configured chat
func (b *Bot) requireAdmin(ctx context.Context, msg *models.Message) bool {
	if msg.Chat.ID != b.chatID {
		b.logger.Warn("command from foreign chat ignored", "chat_id", msg.Chat.ID)
		return false
	}
	if msg.From == nil {
		return false
	}

	isAdmin, err := b.isUserAdmin(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		b.logger.Error("failed to check admin status", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Could not check permissions")
		return false
	}
	if !isAdmin {
		b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, "Only chat administrators can control monitoring")
		return false
	}
	return true
}

// sendMessage sends a message to a topic
func (b *Bot) sendMessage(ctx context.Context, chatID int64, topicID int, text string) (*models.Message, error) {
	return b.sendMessageWithKeyboard(ctx, chatID, topicID, text, nil)
}

// sendMessageWithKeyboard sends a message with inline keyboard
func (b *Bot) sendMessageWithKeyboard(ctx context.Context, chatID int64, topicID int, text string, keyboard *models.InlineKeyboardMarkup) (*models.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if topicID != 0 {
		params.MessageThreadID = topicID
	}

	return b.api.SendMessage(ctx, params)
}

// parseTeamID reads the team ID argument of a command
func parseTeamID(text string) (int64, error) {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected exactly one team id")
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid team id %q", parts[1])
	}
	return id, nil
}
