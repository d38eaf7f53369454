package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/get2b/get2b-go/internal/domain"
)

// ManagerNotifier posts scenario changes to the managers' chat.
type ManagerNotifier struct {
	client *Client
	chatID string
}

func NewManagerNotifier(client *Client, chatID string) (*ManagerNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("telegram client is required")
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("chat id is required")
	}
	return &ManagerNotifier{client: client, chatID: strings.TrimSpace(chatID)}, nil
}

func (n *ManagerNotifier) NotifyScenario(ctx context.Context, event domain.ScenarioEvent) error {
	_, err := n.client.SendMessage(ctx, Message{
		ChatID:                n.chatID,
		Text:                  FormatScenarioEvent(event),
		ParseMode:             models.ParseModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}

func FormatScenarioEvent(event domain.ScenarioEvent) string {
	var b strings.Builder
	switch event.Kind {
	case domain.EventScenarioCreated:
		b.WriteString("🌿 <b>New scenario branch</b>\n")
	case domain.EventScenarioSelected:
		b.WriteString("✅ <b>Scenario selected</b>\n")
	case domain.EventScenarioDeleted:
		b.WriteString("🗑 <b>Scenario deleted</b>\n")
	default:
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(string(event.Kind)))
	}
	fmt.Fprintf(&b, "Project: <code>%s</code>\n", html.EscapeString(event.ProjectID))
	fmt.Fprintf(&b, "Scenario: <code>%s</code>", html.EscapeString(event.ScenarioID))
	if name := strings.TrimSpace(event.Name); name != "" {
		fmt.Fprintf(&b, "\nName: %s", html.EscapeString(name))
	}
	if event.CreatorRole != "" {
		fmt.Fprintf(&b, "\nRole: %s", html.EscapeString(string(event.CreatorRole)))
	}
	if event.Removed > 1 {
		fmt.Fprintf(&b, "\nBranches removed: %d", event.Removed)
	}
	if actor := strings.TrimSpace(event.Actor); actor != "" {
		fmt.Fprintf(&b, "\nBy: %s", html.EscapeString(actor))
	}
	return b.String()
}
