package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// -------- config --------

type Config struct {
	Port          string
	VerifyToken   string
	WhatsAppToken string
	PhoneNumberID string

	MenuPath     string
	SynonymsPath string
	DBPath       string
	ComandaPath  string

	AIEnabled bool
	AIBaseURL string
	AIModel   string
	AIAPIKey  string
	AITimeout time.Duration

	DeliveryFee   int64 // cents
	ETAMinutes    int
	ConfirmedIdle time.Duration
}

func getenvDefault(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getenvIntDefault(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func loadConfig() Config {
	return Config{
		Port:          getenvDefault("PORT", "5000"),
		VerifyToken:   os.Getenv("VERIFY_TOKEN"),
		WhatsAppToken: os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID: os.Getenv("PHONE_NUMBER_ID"),

		MenuPath:     getenvDefault("MENU_PATH", "menu.txt"),
		SynonymsPath: getenvDefault("SYNONYMS_PATH", "synonyms.txt"),
		DBPath:       getenvDefault("DB_PATH", "orders.db"),
		ComandaPath:  getenvDefault("COMANDA_PATH", "comanda.txt"),

		AIEnabled: getenvDefault("AI_ENABLED", "0") == "1",
		AIBaseURL: getenvDefault("AI_BASE_URL", "http://127.0.0.1:8080/v1"),
		AIModel:   getenvDefault("AI_MODEL", "local-model"),
		AIAPIKey:  os.Getenv("AI_API_KEY"),
		AITimeout: time.Duration(getenvIntDefault("AI_TIMEOUT_SEC", 5)) * time.Second,

		DeliveryFee:   int64(getenvIntDefault("DELIVERY_FEE", 3000)) * 100,
		ETAMinutes:    getenvIntDefault("ETA_MIN", 20),
		ConfirmedIdle: time.Duration(getenvIntDefault("CONFIRMED_IDLE_MIN", 20)) * time.Minute,
	}
}

// -------- wiring --------

func buildBot(cfg Config, sink OrderSink, log *slog.Logger) (*Bot, error) {
	catalog, err := LoadCatalog(cfg.MenuPath, cfg.SynonymsPath)
	if err != nil {
		return nil, err
	}

	var fallback FallbackClassifier = NoopFallback{}
	if cfg.AIEnabled {
		fallback = &CompletionClient{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
		}
	}

	return &Bot{
		Catalog: catalog,
		Classifier: &Classifier{
			Catalog:         catalog,
			Fallback:        fallback,
			FallbackTimeout: cfg.AITimeout,
			Log:             log,
		},
		Sessions:      NewSessionRegistry(),
		Sink:          sink,
		Log:           log,
		DeliveryFee:   cfg.DeliveryFee,
		ETAMinutes:    cfg.ETAMinutes,
		ConfirmedIdle: cfg.ConfirmedIdle,
	}, nil
}

// -------- web handlers --------

type server struct {
	bot    *Bot
	sender MessageSender
	cfg    Config
	log    *slog.Logger
	dedup  *messageDeduper
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"ok": true})
	})
	r.Get("/webhook", s.handleWebhookVerify)
	r.Post("/webhook", s.handleWebhookReceive)
	r.Post("/test_message", s.handleTestMessage)
	return r
}

// Meta subscription handshake: echo hub.challenge when the token matches.
func (s *server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.cfg.VerifyToken {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}

func (s *server) handleWebhookReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, 200, map[string]any{"ok": true})
		return
	}

	from, text, msgID, ok := parseWebhookMessage(body)
	// status callbacks and malformed payloads are acknowledged and dropped
	if !ok || s.dedup.Seen(msgID) {
		writeJSON(w, 200, map[string]any{"ok": true})
		return
	}

	out, err := s.bot.Handle(r.Context(), Inbound{CustomerID: from, Text: text, Timestamp: time.Now()})
	if err != nil {
		s.log.Error("message handling failed", "customer", from, "err", err)
		writeJSON(w, 200, map[string]any{"ok": true})
		return
	}
	if err := s.sender.SendText(r.Context(), out.CustomerID, out.Text); err != nil {
		s.log.Error("outbound send failed", "customer", from, "err", err)
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

type testMessageReq struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// handleTestMessage drives the bot without WhatsApp; the reply comes back
// in the response body.
func (s *server) handleTestMessage(w http.ResponseWriter, r *http.Request) {
	var req testMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "invalid json"})
		return
	}
	if req.From == "" {
		req.From = "test_user"
	}
	out, err := s.bot.Handle(r.Context(), Inbound{CustomerID: req.From, Text: req.Text, Timestamp: time.Now()})
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, 200, map[string]any{"reply": out.Text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := loadConfig()

	store, err := OpenStore(cfg.DBPath, cfg.ComandaPath)
	if err != nil {
		log.Error("open order store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	bot, err := buildBot(cfg, store, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}

	var sender MessageSender = NoopSender{}
	if cfg.WhatsAppToken != "" && cfg.PhoneNumberID != "" {
		sender = NewWhatsAppClient(cfg.WhatsAppToken, cfg.PhoneNumberID)
	} else {
		log.Warn("whatsapp credentials missing, outbound sends disabled")
	}

	// archive confirmed sessions that went quiet
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for range t.C {
			bot.Sessions.SweepConfirmed(time.Now(), cfg.ConfirmedIdle, func(s *Session) {
				log.Info("session archived", "customer", s.CustomerID, "order", s.OrderNumber)
			})
		}
	}()

	srv := &server{bot: bot, sender: sender, cfg: cfg, log: log, dedup: newMessageDeduper(1024)}
	log.Info("server listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, srv.routes()); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
