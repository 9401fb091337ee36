package bot

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"mediasniff/internal/domain"
	"mediasniff/internal/query"
)

// Browser is the part of the sniffer the bot drives.
type Browser interface {
	Tabs() []domain.Tab
	Open(ctx context.Context, url string) (domain.TabID, error)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot     *tgbot.Bot
	svc     *query.Service
	browser Browser
	log     logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
func NewHandler(token string, svc *query.Service, browser Browser, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		svc:     svc,
		browser: browser,
		log:     log,
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command handlers.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/tabs", tgbot.MatchTypeExact, h.tabsHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/links", tgbot.MatchTypePrefix, h.linksHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/clear", tgbot.MatchTypePrefix, h.clearHandler)
	h.log.Info("Registered bot command handlers")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.reply(ctx, b, update, welcomeMessage)
}

func (h *Handler) tabsHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	for _, text := range formatTabs(h.browser.Tabs()) {
		h.reply(ctx, b, update, text)
	}
}

func (h *Handler) linksHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	tabID, err := parseTabArg(update.Message.Text, "/links")
	if err != nil {
		h.reply(ctx, b, update, "Usage: /links <tab id>")
		return
	}

	resp, err := h.svc.GetLinks(ctx, tabID)
	if err != nil {
		h.log.WithError(err).WithField("tab_id", tabID).Error("Failed to get links")
		h.reply(ctx, b, update, "Error loading links.")
		return
	}
	for _, text := range formatLinks(tabID, resp.Links) {
		h.reply(ctx, b, update, text)
	}
}

func (h *Handler) clearHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	tabID, err := parseTabArg(update.Message.Text, "/clear")
	if err != nil {
		h.reply(ctx, b, update, "Usage: /clear <tab id>")
		return
	}

	resp, err := h.svc.ClearLinks(ctx, tabID)
	if err != nil {
		h.log.WithError(err).WithField("tab_id", tabID).Error("Failed to clear links")
		h.reply(ctx, b, update, "Error clearing links.")
		return
	}
	if resp.Success {
		h.reply(ctx, b, update, fmt.Sprintf("Cleared links for tab %d.", tabID))
		return
	}
	h.reply(ctx, b, update, fmt.Sprintf("Nothing to clear for tab %d.", tabID))
}

// defaultHandler opens URLs sent as plain messages in a new watched tab.
func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	text := update.Message.Text
	log := h.log.WithField("chat_id", update.Message.Chat.ID)

	url, ok := extractURL(text)
	if !ok {
		log.WithField("text", text).Debug("Received unhandled message")
		h.reply(ctx, b, update, "Send me a URL to watch, or use /tabs, /links or /clear.")
		return
	}

	tabID, err := h.browser.Open(ctx, url)
	if err != nil {
		log.WithError(err).WithField("url", url).Warn("Failed to open tab")
		h.reply(ctx, b, update, "Could not open that page.")
		return
	}
	h.reply(ctx, b, update, fmt.Sprintf("Watching %s in tab %d. Use /links %d once it has loaded.", url, tabID, tabID))
}

// reply sends text to the chat of update. A failed send is logged and
// dropped; the chat may simply be gone.
func (h *Handler) reply(ctx context.Context, b *tgbot.Bot, update *models.Update, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", update.Message.Chat.ID).Warn("Failed to send reply")
	}
}
