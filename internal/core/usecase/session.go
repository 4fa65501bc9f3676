package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

const defaultHistoryLimit = 50

type SessionUseCase struct {
	conversations ports.ConversationStore
}

func NewSessionUseCase(conversations ports.ConversationStore) *SessionUseCase {
	return &SessionUseCase{conversations: conversations}
}

// History returns the most recent messages of a session, oldest first.
func (uc *SessionUseCase) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "session history", errors.New("session id is required"))
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return uc.conversations.ListRecentMessages(ctx, sessionID, limit)
}

func (uc *SessionUseCase) Clear(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "clear session", errors.New("session id is required"))
	}
	return uc.conversations.DeleteSession(ctx, sessionID)
}
