package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/model"
)

// maxContextChars bounds a single message inside the routing context.
const maxContextChars = 200

// MessagesManager turns the rolling session window into model inputs.
type MessagesManager struct {
	sessionRepo model.SessionRepository
	maxTurns    int
}

func NewMessagesManager(sessionRepo model.SessionRepository, config model.SessionConfig) *MessagesManager {
	maxTurns := config.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 3
	}
	return &MessagesManager{
		sessionRepo: sessionRepo,
		maxTurns:    maxTurns,
	}
}

// =========== Routing ===========

// RoutingContext renders recent turns for the intent classifier.
// An empty session yields "".
func (cm *MessagesManager) RoutingContext(ctx context.Context, sessionID string) (string, error) {
	messages, err := cm.History(ctx, sessionID)
	if err != nil || len(messages) == 0 {
		return "", err
	}
	return FormatRoutingContext(messages), nil
}

// FormatRoutingContext renders already loaded messages for the classifier.
func FormatRoutingContext(messages []*schema.Message) string {
	if len(messages) == 0 {
		return ""
	}
	var contextBuilder strings.Builder
	contextBuilder.WriteString("<conversation_context>\n")

	for _, msg := range messages {
		if msg == nil || msg.Content == "" {
			continue
		}
		content := common.Truncate(msg.Content, maxContextChars, "...")
		switch msg.Role {
		case schema.User:
			contextBuilder.WriteString("UserMessage(" + content + ")\n")
		case schema.Assistant:
			contextBuilder.WriteString("AssistantMessage(" + content + ")\n")
		}
	}

	contextBuilder.WriteString("</conversation_context>")
	return contextBuilder.String()
}

// =========== Answering ===========

// History returns the most recent turns of a session, oldest first.
func (cm *MessagesManager) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	if sessionID == "" {
		return nil, nil
	}
	history, err := cm.sessionRepo.LoadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return trimTail(history.Messages, cm.maxTurns*2), nil
}

// SaveTurn appends a completed user/assistant exchange to the window.
func (cm *MessagesManager) SaveTurn(ctx context.Context, sessionID, query, answer string) error {
	if err := cm.sessionRepo.AddMessage(ctx, sessionID, schema.UserMessage(query)); err != nil {
		return err
	}
	return cm.sessionRepo.AddMessage(ctx, sessionID, schema.AssistantMessage(answer, nil))
}

// Clear drops the window of a session.
func (cm *MessagesManager) Clear(ctx context.Context, sessionID string) error {
	return cm.sessionRepo.ClearHistory(ctx, sessionID)
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, limit int) []*schema.Message {
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	result := make([]*schema.Message, len(messages))
	copy(result, messages)
	return result
}
