package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/get2b/get2b-go/internal/platform/env"
)

const defaultAPIURL = "https://api.telegram.org"

var ErrDisabled = errors.New("telegram notifications disabled")

type Config struct {
	BotToken string
	ChatID   string
	APIURL   string
	Timeout  time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("TELEGRAM_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		BotToken: env.String("TELEGRAM_BOT_TOKEN", ""),
		ChatID:   env.String("TELEGRAM_CHAT_ID", ""),
		APIURL:   env.String("TELEGRAM_API_URL", defaultAPIURL),
		Timeout:  timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether both the bot token and the manager chat are set.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.BotToken) != "" && strings.TrimSpace(c.ChatID) != ""
}

func (c Config) Validate() error {
	token := strings.TrimSpace(c.BotToken)
	chat := strings.TrimSpace(c.ChatID)
	if (token == "") != (chat == "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("telegram api url must be http(s): %q", c.APIURL)
	}
	if c.Timeout <= 0 {
		return errors.New("telegram timeout must be positive")
	}
	return nil
}

// Client sends messages through the Bot API. It never polls for updates.
type Client struct {
	bot *bot.Bot
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	b, err := bot.New(strings.TrimSpace(cfg.BotToken),
		bot.WithServerURL(strings.TrimRight(cfg.APIURL, "/")),
		bot.WithHTTPClient(cfg.Timeout, &http.Client{Timeout: cfg.Timeout}),
		bot.WithSkipGetMe(),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Client{bot: b}, nil
}

type Message struct {
	ChatID                string
	Text                  string
	ParseMode             models.ParseMode
	DisableWebPagePreview bool
}

type SentMessage struct {
	MessageID int
}

// SendMessage posts msg. API failures wrap the bot package sentinels, so
// callers can match bot.ErrorBadRequest, bot.ErrorForbidden and friends.
func (c *Client) SendMessage(ctx context.Context, msg Message) (SentMessage, error) {
	if strings.TrimSpace(msg.ChatID) == "" {
		return SentMessage{}, errors.New("chat id is required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return SentMessage{}, errors.New("text is required")
	}

	params := &bot.SendMessageParams{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: msg.ParseMode,
	}
	if msg.DisableWebPagePreview {
		params.LinkPreviewOptions = &models.LinkPreviewOptions{IsDisabled: bot.True()}
	}

	sent, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return SentMessage{}, fmt.Errorf("telegram send: %w", err)
	}
	return SentMessage{MessageID: sent.ID}, nil
}
