// Package dispatch delivers replies through platform callback channels.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"foodrelay/internal/domain"
)

// CliqConfig configures the Zoho Cliq style callback dispatcher.
type CliqConfig struct {
	APIBase    string // e.g. https://cliq.zoho.com/api/v2
	AuthScheme string // Authorization scheme placed before the event's token
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Cliq posts replies to /bots/{unique_name}/message or /chats/{id}/message
// using the bearer token carried by the inbound event.
type Cliq struct {
	apiBase string
	scheme  string
	client  *http.Client
	logger  *slog.Logger
}

func NewCliq(cfg CliqConfig) *Cliq {
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Zoho-oauthtoken"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cliq{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		scheme:  cfg.AuthScheme,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}
}

// CallbackURL returns the delivery URL for evt. A bot unique name takes
// precedence over a chat id.
func (c *Cliq) CallbackURL(evt domain.InboundEvent) (string, bool) {
	if evt.Bot.Token == "" {
		return "", false
	}
	switch {
	case evt.Bot.UniqueName != "":
		return c.apiBase + "/bots/" + url.PathEscape(evt.Bot.UniqueName) + "/message", true
	case evt.Chat.ID != "":
		return c.apiBase + "/chats/" + url.PathEscape(evt.Chat.ID) + "/message", true
	default:
		return "", false
	}
}

func (c *Cliq) Resolvable(evt domain.InboundEvent) bool {
	_, ok := c.CallbackURL(evt)
	return ok
}

// Deliver posts reply. Failures wrap domain.ErrDispatchFailed.
func (c *Cliq) Deliver(ctx context.Context, evt domain.InboundEvent, reply domain.ReplyMessage) error {
	target, ok := c.CallbackURL(evt)
	if !ok {
		return domain.ErrNoCallback
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.scheme+" "+evt.Bot.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: callback returned %d: %s", domain.ErrDispatchFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	io.Copy(io.Discard, resp.Body)

	c.logger.Debug("reply delivered", "status", resp.StatusCode, "text_len", len(reply.Text))
	return nil
}
