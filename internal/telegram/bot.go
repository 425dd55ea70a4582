package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/clarify/internal/email"
	"github.com/mixelka/clarify/internal/formatter"
	"github.com/mixelka/clarify/internal/scheduler"
	appmodels "github.com/mixelka/clarify/pkg/models"
)

// API is the part of the Telegram Bot API the bot uses
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
}

// Controller is the scheduler surface available to chat administrators
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	AddTeamMonitoring(ctx context.Context, teamID int64) error
	RemoveTeamMonitoring(teamID int64)
	GetStatus(ctx context.Context) (scheduler.Status, error)
	TeamStatus() []email.TeamStatus
}

// TeamLookup resolves the team of a case for its topic and name
type TeamLookup interface {
	GetTeam(ctx context.Context, id int64) (*appmodels.Team, error)
}

// Bot represents the Telegram bot
type Bot struct {
	api         API
	bot         *bot.Bot
	chatID      int64
	caseURLBase string
	ctrl        Controller
	teams       TeamLookup
	formatter   *formatter.TelegramFormatter
	logger      *slog.Logger
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Token       string
	ChatID      int64
	CaseURLBase string
	Teams       TeamLookup
	Formatter   *formatter.TelegramFormatter
	Logger      *slog.Logger
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := newBot(deps)

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Token, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	b.api = tgBot

	return b, nil
}

// SetupCommands enables the admin commands backed by ctrl
func (b *Bot) SetupCommands(ctrl Controller) {
	b.ctrl = ctrl
	if b.bot != nil {
		b.registerHandlers()
	}
}

func newBot(deps BotDeps) *Bot {
	f := deps.Formatter
	if f == nil {
		f = formatter.NewTelegramFormatter()
	}
	return &Bot{
		chatID:      deps.ChatID,
		caseURLBase: deps.CaseURLBase,
		teams:       deps.Teams,
		formatter:   f,
		logger:      deps.Logger.With("component", "telegram_bot"),
	}
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/startall", bot.MatchTypePrefix, b.handleStartAll)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stopall", bot.MatchTypePrefix, b.handleStopAll)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/addteam", bot.MatchTypePrefix, b.handleAddTeam)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/removeteam", bot.MatchTypePrefix, b.handleRemoveTeam)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
}

// Start starts the bot
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot", "chat_id", b.chatID)
	b.bot.Start(ctx)
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}

// handleHelp handles /help command
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	text := `<b>Clarification intake</b>

Incoming partner mail of every team is turned into clarification cases. New cases are announced in the team topic.

<b>Commands (chat admins):</b>
/status - monitoring state of all teams
/startall - start monitoring of all enabled teams
/stopall - stop all monitoring
/addteam id - start monitoring of one team
/removeteam id - stop monitoring of one team`

	b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, text)
}
