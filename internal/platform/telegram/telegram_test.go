package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot"

	"github.com/get2b/get2b-go/internal/domain"
)

type sentForm struct {
	path   string
	fields url.Values
}

func newTestClient(t *testing.T, reply string, status int) (*Client, *sentForm) {
	t.Helper()
	got := &sentForm{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() err=%v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got.fields = r.MultipartForm.Value
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BotToken: "123:abc", ChatID: "-100", APIURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	return client, got
}

const sentReply = `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`

func TestSendMessage(t *testing.T) {
	client, got := newTestClient(t, sentReply, http.StatusOK)

	sent, err := client.SendMessage(context.Background(), Message{ChatID: "-100", Text: "hi", ParseMode: "HTML", DisableWebPagePreview: true})
	if err != nil {
		t.Fatalf("SendMessage() err=%v", err)
	}
	if sent.MessageID != 42 {
		t.Fatalf("MessageID=%d", sent.MessageID)
	}
	if got.path != "/bot123:abc/sendMessage" {
		t.Fatalf("path=%q", got.path)
	}
	if got.fields.Get("chat_id") != "-100" || got.fields.Get("text") != "hi" || got.fields.Get("parse_mode") != "HTML" {
		t.Fatalf("fields=%v", got.fields)
	}
	if !strings.Contains(got.fields.Get("link_preview_options"), `"is_disabled":true`) {
		t.Fatalf("link_preview_options=%q", got.fields.Get("link_preview_options"))
	}
}

func TestSendMessage_Validation(t *testing.T) {
	client, _ := newTestClient(t, sentReply, http.StatusOK)
	if _, err := client.SendMessage(context.Background(), Message{Text: "hi"}); err == nil {
		t.Fatalf("expected missing chat id to fail")
	}
	if _, err := client.SendMessage(context.Background(), Message{ChatID: "-100", Text: " "}); err == nil {
		t.Fatalf("expected blank text to fail")
	}
}

func TestSendMessage_APIError(t *testing.T) {
	client, _ := newTestClient(t, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, http.StatusBadRequest)

	_, err := client.SendMessage(context.Background(), Message{ChatID: "-100", Text: "hi"})
	if !errors.Is(err, bot.ErrorBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSendMessage_NetworkErrorHidesToken(t *testing.T) {
	client, err := NewClient(Config{BotToken: "123:secret", ChatID: "1", APIURL: "http://127.0.0.1:1", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	_, err = client.SendMessage(context.Background(), Message{ChatID: "1", Text: "hi"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks token: %v", err)
	}
}

func TestConfig(t *testing.T) {
	if err := (Config{BotToken: "x", APIURL: defaultAPIURL, Timeout: time.Second}).Validate(); err == nil {
		t.Fatalf("expected token without chat to fail")
	}
	cfg := Config{APIURL: defaultAPIURL, Timeout: time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("empty config should be disabled")
	}
	if _, err := NewClient(cfg); !errors.Is(err, ErrDisabled) {
		t.Fatalf("NewClient() err=%v, want ErrDisabled", err)
	}
}

func TestManagerNotifier(t *testing.T) {
	client, got := newTestClient(t, sentReply, http.StatusOK)
	notifier, err := NewManagerNotifier(client, "-100")
	if err != nil {
		t.Fatalf("NewManagerNotifier() err=%v", err)
	}

	err = notifier.NotifyScenario(context.Background(), domain.ScenarioEvent{
		Kind:        domain.EventScenarioCreated,
		ProjectID:   "P1",
		ScenarioID:  "S1",
		Name:        "Alt <supplier>",
		CreatorRole: domain.CreatorClient,
	})
	if err != nil {
		t.Fatalf("NotifyScenario() err=%v", err)
	}
	if got.fields.Get("chat_id") != "-100" || got.fields.Get("parse_mode") != "HTML" {
		t.Fatalf("fields=%v", got.fields)
	}
	text := got.fields.Get("text")
	if !strings.Contains(text, "New scenario branch") || !strings.Contains(text, "Alt &lt;supplier&gt;") {
		t.Fatalf("text=%q", text)
	}
}
