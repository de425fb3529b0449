package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"foodrelay/internal/domain"
	"foodrelay/internal/format"
	"foodrelay/internal/metrics"
	"foodrelay/internal/relay"
	"foodrelay/internal/resolver"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const telegramMaxMsgLen = 4000

// TelegramBot is the part of *tgbotapi.BotAPI the relay uses.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Telegram answers Telegram webhook updates. Photos are resolved to a
// direct file URL and analyzed; the reply goes back through the Bot API.
type Telegram struct {
	bot       TelegramBot
	relay     *relay.Relay
	parseMode string
	logger    *slog.Logger

	pending sync.WaitGroup
}

type TelegramConfig struct {
	Bot       TelegramBot
	Relay     *relay.Relay
	ParseMode string // "" = Markdown
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.ParseMode == "" {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		bot:       cfg.Bot,
		relay:     cfg.Relay,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
}

// Wait blocks until every accepted update has been answered.
func (t *Telegram) Wait() { t.pending.Wait() }

// HandleUpdate is the POST /webhook-telegram handler. Telegram retries
// updates that are not acknowledged quickly, so the work runs detached.
func (t *Telegram) HandleUpdate(rw http.ResponseWriter, r *http.Request) {
	metrics.Requests(r.URL.Path).Inc()
	log := t.logger.With("request_id", uuid.NewString(), "route", r.URL.Path)

	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&update); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		writeJSON(rw, map[string]string{"status": "ignored"})
		return
	}
	chatID := msg.Chat.ID
	log = log.With("chat_id", chatID, "update_id", update.UpdateID)

	fileID, ok := PhotoFileID(msg)
	ctx := context.WithoutCancel(r.Context())
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		if !ok {
			metrics.NoImageReplies.Inc()
			t.sendMessage(log, chatID, format.NoImagePrompt)
			return
		}
		t.sendMessage(log, chatID, format.AnalyzingNotice)
		t.sendMessage(log, chatID, t.analyze(ctx, log, fileID, requesterOf(msg.From)).Text)
	}()

	writeJSON(rw, map[string]string{"status": "accepted"})
}

// analyze resolves fileID and runs the analysis. Telegram file links and
// Bot API errors carry the bot token, so neither reaches the chat or the log.
func (t *Telegram) analyze(ctx context.Context, log *slog.Logger, fileID string, who domain.Requester) domain.ReplyMessage {
	link, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		log.Warn("telegram file lookup failed", "file_id", fileID, "err", resolver.StripURL(err))
		return t.relay.Failure(domain.ErrImageDownload)
	}
	reply, err := t.relay.Analyze(ctx, domain.RemoteURL(link), who)
	if err != nil {
		log.Warn("analysis failed", "err", redact(err.Error(), link))
	}
	reply.Text = redact(reply.Text, link)
	return reply
}

const redactedLink = "<telegram file>"

// redact removes the file link and its token-bearing path from s.
func redact(s, link string) string {
	if link == "" {
		return s
	}
	s = strings.ReplaceAll(s, link, redactedLink)
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		s = strings.ReplaceAll(s, u.Path, redactedLink)
	}
	return s
}

// PhotoFileID picks the largest photo size, or an image document.
func PhotoFileID(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return best.FileID, best.FileID != ""
	}
	if doc := msg.Document; doc != nil && strings.HasPrefix(doc.MimeType, "image/") {
		return doc.FileID, doc.FileID != ""
	}
	return "", false
}

func requesterOf(u *tgbotapi.User) domain.Requester {
	if u == nil {
		return domain.Requester{}.WithDefaults()
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return domain.Requester{Name: name}.WithDefaults()
}

func (t *Telegram) sendMessage(log *slog.Logger, chatID int64, text string) {
	// Cliq bold markup; Telegram Markdown uses a single asterisk.
	if t.parseMode == tgbotapi.ModeMarkdown {
		text = strings.ReplaceAll(text, "**", "*")
	}
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(log, chatID, chunk)
	}
}

// sendChunk tries the configured parse mode first and falls back to plain
// text when Telegram rejects the markup.
func (t *Telegram) sendChunk(log *slog.Logger, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = t.parseMode
	_, err := t.bot.Send(msg)
	if err == nil {
		return
	}
	if t.parseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
		log.Warn("telegram markdown rejected, resending as plain text", "err", err)
		if _, err = t.bot.Send(tgbotapi.NewMessage(chatID, text)); err == nil {
			return
		}
	}
	metrics.DispatchFailures.Inc()
	log.Error("telegram send failed", "err", err)
}
