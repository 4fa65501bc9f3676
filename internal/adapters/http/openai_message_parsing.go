package httpadapter

import (
	"encoding/json"
	"strings"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

// latestUserMessage returns the index and text of the last user message
// with text content.
func latestUserMessage(messages []chatMessage) (int, string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != domain.RoleUser {
			continue
		}
		if text := extractMessageText(messages[i]); text != "" {
			return i, text, true
		}
	}
	return -1, "", false
}

func extractMessageText(message chatMessage) string {
	switch content := message.Content.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(content)
	case []interface{}:
		parts := make([]string, 0, len(content))
		for _, item := range content {
			switch typed := item.(type) {
			case string:
				if segment := strings.TrimSpace(typed); segment != "" {
					parts = append(parts, segment)
				}
			case map[string]interface{}:
				if text, ok := typed["text"].(string); ok {
					if segment := strings.TrimSpace(text); segment != "" {
						parts = append(parts, segment)
					}
				}
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	default:
		payload, err := json.Marshal(content)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(payload))
	}
}

// conversationContext renders up to limit messages before the current
// question as "role: text" lines. System messages go first regardless of
// the limit.
func conversationContext(messages []chatMessage, current, limit int) string {
	if current <= 0 {
		return ""
	}
	var system, turns []string
	for _, message := range messages[:current] {
		text := extractMessageText(message)
		if text == "" {
			continue
		}
		switch message.Role {
		case domain.RoleSystem:
			system = append(system, "system: "+text)
		case domain.RoleUser, domain.RoleAssistant:
			turns = append(turns, message.Role+": "+text)
		}
	}
	if limit >= 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return strings.Join(append(system, turns...), "\n")
}

func chatSessionID(req chatCompletionRequest) string {
	if req.Metadata != nil && strings.TrimSpace(req.Metadata.SessionID) != "" {
		return strings.TrimSpace(req.Metadata.SessionID)
	}
	return strings.TrimSpace(req.User)
}
