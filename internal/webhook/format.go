package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/sydlexius/releasewire/internal/event"
)

// formatPayload returns the request body and content-type for a webhook delivery.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	switch w.Type {
	case TypeDiscord:
		return formatDiscord(e)
	case TypeSlack:
		return formatSlack(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"event":        string(e.Type),
		"run_id":       e.RunID,
		"principal_id": e.PrincipalID,
		"timestamp":    e.Timestamp,
		"data":         e.Data,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatDiscord(e event.Event) ([]byte, string) {
	color := 3447003 // blue
	if e.Type == event.ImportFailed {
		color = 15158332 // red
	}
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       fmt.Sprintf("releasewire: %s", e.Type),
				"description": formatDescription(e),
				"color":       color,
				"timestamp":   e.Timestamp.Format("2006-01-02T15:04:05Z"),
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatSlack(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"text": fmt.Sprintf("*releasewire: %s*\n%s", e.Type, formatDescription(e)),
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatDescription(e event.Event) string {
	switch e.Type {
	case event.ImportCompleted:
		return fmt.Sprintf("Import %s by %s finished: %v created, %v skipped, %v errors",
			e.RunID, e.PrincipalID, e.Data["created"], e.Data["skipped"], e.Data["errors"])
	case event.ImportFailed:
		return fmt.Sprintf("Import %s by %s failed: %v", e.RunID, e.PrincipalID, e.Data["error"])
	case event.ImportStarted:
		return fmt.Sprintf("Import %s started by %s", e.RunID, e.PrincipalID)
	}
	if e.Data == nil {
		return string(e.Type)
	}
	b, _ := json.Marshal(e.Data)
	return string(b)
}
