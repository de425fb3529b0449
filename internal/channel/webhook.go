package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"foodrelay/internal/domain"
	"foodrelay/internal/format"
	"foodrelay/internal/metrics"
	"foodrelay/internal/relay"
	"foodrelay/internal/resolver"

	"github.com/google/uuid"
)

const (
	maxBodySize     = 1 << 20 // JSON webhook bodies
	deliveryTimeout = 30 * time.Second
)

// WebhookConfig configures the relay's HTTP surface.
type WebhookConfig struct {
	Host            string
	Port            int
	Relay           *relay.Relay
	Uploads         *resolver.Uploads
	Dispatcher      domain.Dispatcher // optional callback channel
	Telegram        *Telegram         // optional; mounts /webhook-telegram
	BotName         string
	MetricsPath     string // empty disables /metrics
	AnalysisTimeout time.Duration
	Version         string
	Logger          *slog.Logger
}

// Webhook serves the inbound routes. All webhook routes answer 200 with an
// explanatory text when analysis fails; the calling platform has no other
// way to show errors to the user.
type Webhook struct {
	host        string
	port        int
	relay       *relay.Relay
	uploads     *resolver.Uploads
	dispatcher  domain.Dispatcher
	telegram    *Telegram
	botName     string
	metricsPath string
	timeout     time.Duration
	version     string
	logger      *slog.Logger
	server      *http.Server

	// pending tracks callback-mode work that outlives its request.
	pending sync.WaitGroup
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 60 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{
		host:        cfg.Host,
		port:        cfg.Port,
		relay:       cfg.Relay,
		uploads:     cfg.Uploads,
		dispatcher:  cfg.Dispatcher,
		telegram:    cfg.Telegram,
		botName:     cfg.BotName,
		metricsPath: cfg.MetricsPath,
		timeout:     cfg.AnalysisTimeout,
		version:     cfg.Version,
		logger:      cfg.Logger,
	}
}

// Handler returns the route table.
func (w *Webhook) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", w.handleWebhook)
	mux.HandleFunc("POST /zoho-webhook", w.handleWebhook)
	mux.HandleFunc("POST /webhook-file", w.handleWebhookFile)
	mux.HandleFunc("POST /analyze-url", w.handleAnalyzeURL)
	mux.HandleFunc("GET /health", w.handleHealth)
	mux.HandleFunc("GET /{$}", w.handleStatus)
	if w.telegram != nil {
		mux.HandleFunc("POST /webhook-telegram", w.telegram.HandleUpdate)
	}
	if w.metricsPath != "" {
		mux.Handle("GET "+w.metricsPath, metrics.Default.Handler())
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down and waits for
// in-flight callback deliveries.
func (w *Webhook) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", w.host, w.port),
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Synchronous replies wait for the analysis service.
		WriteTimeout: w.timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.server.Addr, "version", w.version)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := w.server.Shutdown(shutdownCtx)
		w.Wait()
		return err
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// Wait blocks until detached callback work has finished.
func (w *Webhook) Wait() {
	w.pending.Wait()
	if w.telegram != nil {
		w.telegram.Wait()
	}
}

func (w *Webhook) requestLogger(route string) *slog.Logger {
	metrics.Requests(route).Inc()
	return w.logger.With("request_id", uuid.NewString(), "route", route)
}

func (w *Webhook) withBot(reply domain.ReplyMessage) domain.ReplyMessage {
	if w.botName != "" {
		reply.Bot = &domain.ReplyBot{Name: w.botName}
	}
	return reply
}

func (w *Webhook) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	log := w.requestLogger(r.URL.Path)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	var evt domain.InboundEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		log.Warn("invalid webhook body", "err", err)
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ref, err := resolver.FromEvent(evt)
	switch {
	case errors.Is(err, domain.ErrNoImageProvided):
		metrics.NoImageReplies.Inc()
		log.Info("no image in event", "user", evt.User.Name)
		writeJSON(rw, w.withBot(w.relay.NoImage()))
		return
	case err != nil:
		log.Warn("cannot resolve attachment", "user", evt.User.Name, "err", err)
		writeJSON(rw, w.withBot(w.relay.Failure(err)))
		return
	}
	who := resolver.RequesterOf(evt)
	log = log.With("user", who.Name)

	if w.dispatcher != nil && w.dispatcher.Resolvable(evt) {
		log.Info("analyzing image, reply via callback", "image_kind", ref.Kind.String())
		writeJSON(rw, w.withBot(domain.ReplyMessage{Text: format.AnalyzingNotice}))
		w.detach(r.Context(), log, func(ctx context.Context) {
			reply, err := w.relay.Analyze(ctx, ref, who)
			if err != nil {
				log.Warn("analysis failed", "err", err)
			}
			w.deliver(ctx, log, evt, w.withBot(reply))
		})
		return
	}

	log.Info("analyzing image, synchronous reply", "image_kind", ref.Kind.String())
	reply, err := w.relay.Analyze(r.Context(), ref, who)
	if err != nil {
		log.Warn("analysis failed", "err", err)
	}
	writeJSON(rw, w.withBot(reply))
}

func (w *Webhook) handleWebhookFile(rw http.ResponseWriter, r *http.Request) {
	log := w.requestLogger(r.URL.Path)

	ref, who, err := w.uploads.FromRequest(r)
	switch {
	case errors.Is(err, resolver.ErrNotMultipart):
		log.Warn("invalid upload body", "err", err)
		http.Error(rw, "Expected multipart/form-data", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrNoImageProvided):
		metrics.NoImageReplies.Inc()
		writeJSON(rw, textOnly(w.relay.NoImage()))
		return
	case err != nil:
		log.Warn("cannot resolve upload", "err", err)
		writeJSON(rw, textOnly(w.relay.Failure(err)))
		return
	}

	log.Info("analyzing upload", "user", who.Name, "bytes", len(ref.Data), "mime", ref.MimeType)
	reply, err := w.relay.Analyze(r.Context(), ref, who)
	if err != nil {
		log.Warn("analysis failed", "err", err)
	}
	writeJSON(rw, textOnly(reply))
}

// AnalyzeURLRequest is the body of POST /analyze-url. ImageBase64 is
// used only when ImageURL is empty.
type AnalyzeURLRequest struct {
	ImageURL    string `json:"imageUrl"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	UserName    string `json:"userName"`
	UserEmail   string `json:"userEmail"`
}

func (w *Webhook) handleAnalyzeURL(rw http.ResponseWriter, r *http.Request) {
	log := w.requestLogger(r.URL.Path)

	var body AnalyzeURLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&body); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}
	ref := domain.RemoteURL(strings.TrimSpace(body.ImageURL))
	if ref.URL == "" {
		var err error
		ref, err = resolver.FromBase64(body.ImageBase64)
		switch {
		case errors.Is(err, domain.ErrNoImageProvided):
			metrics.NoImageReplies.Inc()
			writeJSON(rw, textOnly(w.relay.NoImage()))
			return
		case err != nil:
			log.Warn("invalid inline image", "err", err)
			writeJSON(rw, textOnly(w.relay.Failure(err)))
			return
		}
	}

	who := domain.Requester{Name: body.UserName, Email: body.UserEmail}
	log.Info("analyzing image", "user", who.WithDefaults().Name, "image_kind", ref.Kind.String())
	reply, err := w.relay.Analyze(r.Context(), ref, who)
	if err != nil {
		log.Warn("analysis failed", "err", err)
	}
	writeJSON(rw, textOnly(reply))
}

func (w *Webhook) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *Webhook) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(rw, "Food Scanner relay is running! 🍽️\n\nversion:  %s\ntransfer: %s\n\n", w.version, w.relay.Transfer())
	fmt.Fprintln(rw, "POST /webhook        chat event with attachments")
	fmt.Fprintln(rw, "POST /webhook-file   multipart upload (image, userName, userEmail)")
	fmt.Fprintln(rw, "POST /analyze-url    {imageUrl | imageBase64, userName, userEmail}")
	if w.telegram != nil {
		fmt.Fprintln(rw, "POST /webhook-telegram  Telegram update")
	}
	fmt.Fprintln(rw, "GET  /health")
}

// detach runs fn after the handler has returned. The context keeps the
// request's values but not its cancellation.
func (w *Webhook) detach(parent context.Context, log *slog.Logger, fn func(ctx context.Context)) {
	ctx := context.WithoutCancel(parent)
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("callback work panicked", "panic", rec)
			}
		}()
		fn(ctx)
	}()
}

// deliver sends reply through the callback channel. Failures are logged
// only; the inbound request has already been answered.
func (w *Webhook) deliver(ctx context.Context, log *slog.Logger, evt domain.InboundEvent, reply domain.ReplyMessage) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	err := w.dispatcher.Deliver(ctx, evt, reply)
	switch {
	case err == nil:
		log.Info("reply delivered via callback")
	case errors.Is(err, domain.ErrNoCallback):
		log.Warn("no callback target, reply dropped")
	default:
		metrics.DispatchFailures.Inc()
		log.Error("callback delivery failed", "err", err)
	}
}

func textOnly(reply domain.ReplyMessage) domain.ReplyMessage {
	return domain.ReplyMessage{Text: reply.Text}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	json.NewEncoder(rw).Encode(v)
}
