package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	xhttp "CoinFlow/pkg/http"
	"CoinFlow/pkg/logger"
)

// ErrRejected means Telegram refused the message for good (blocked bot, unknown chat).
var ErrRejected = errors.New("telegram rejected message")

type TelegramConfig struct {
	BotToken   string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RetryBase is the first backoff step; it doubles per attempt.
	RetryBase time.Duration
}

// Telegram sends messages through the Bot API.
type Telegram struct {
	cfg    TelegramConfig
	client *xhttp.Client
	logger *logger.Logger
}

func NewTelegram(cfg TelegramConfig, l *logger.Logger) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Telegram{
		cfg:    cfg,
		client: xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		logger: l.With(logger.String("component", "telegram")),
	}
}

type sendMessage struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send delivers text to chatID, retrying throttling, server errors and network failures.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	var err error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		var wait time.Duration
		wait, err = t.send(ctx, chatID, text)
		if err == nil || errors.Is(err, ErrRejected) {
			return err
		}
		if attempt == t.cfg.MaxRetries {
			break
		}
		if wait <= 0 {
			wait = t.cfg.RetryBase << attempt
		}
		t.logger.Warn("telegram send failed, retrying",
			logger.Int64("chat_id", chatID),
			logger.Int("attempt", attempt+1),
			logger.Duration("backoff", wait),
			logger.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("telegram: %d attempts failed: %w", t.cfg.MaxRetries+1, err)
}

// send makes one call. The returned duration is the server's requested wait, if any.
func (t *Telegram) send(ctx context.Context, chatID int64, text string) (time.Duration, error) {
	var resp telegramResponse
	err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    strings.TrimRight(t.cfg.BaseURL, "/") + "/bot" + t.cfg.BotToken + "/sendMessage",
		Body: sendMessage{
			ChatID:                chatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		},
	}, &resp)

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		_ = json.Unmarshal([]byte(se.Body), &resp)
		switch {
		case se.Code == http.StatusTooManyRequests:
			var wait time.Duration
			if resp.Parameters != nil {
				wait = time.Duration(resp.Parameters.RetryAfter) * time.Second
			}
			return wait, fmt.Errorf("throttled: %s", resp.Description)
		case se.Code >= 400 && se.Code < 500:
			return 0, fmt.Errorf("%w: %d %s", ErrRejected, se.Code, resp.Description)
		}
		return 0, fmt.Errorf("status %d: %s", se.Code, resp.Description)
	}
	if err != nil {
		// The token is part of the URL; keep it out of logs.
		return 0, errors.New(strings.ReplaceAll(err.Error(), t.cfg.BotToken, "***"))
	}
	if !resp.OK {
		return 0, fmt.Errorf("%w: %s", ErrRejected, resp.Description)
	}
	return 0, nil
}
