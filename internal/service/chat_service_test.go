package service

import (
	"strings"
	"testing"

	"knowledge-assistant-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

func TestTitleFromQuery(t *testing.T) {
	assert.Equal(t, "short question", titleFromQuery("short question"))

	long := strings.Repeat("a", 100)
	title := titleFromQuery(long)
	assert.Equal(t, sessionTitleMaxRunes+3, len([]rune(title)))
	assert.True(t, strings.HasSuffix(title, "..."))

	// Multibyte runes must not be split
	multibyte := strings.Repeat("ü", 80)
	assert.Equal(t, strings.Repeat("ü", sessionTitleMaxRunes)+"...", titleFromQuery(multibyte))
}

func TestHistoryMessages(t *testing.T) {
	memSession := &store.Session{ID: "s1"}
	memSession.AppendTurn(ChatMessageRoleUser, "what is the refund policy?")
	memSession.AppendTurn(ChatMessageRoleAssistant, "refunds are processed within 14 days")

	messages := historyMessages(memSession)
	assert.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "what is the refund policy?", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestHistoryMessagesEmptySession(t *testing.T) {
	messages := historyMessages(&store.Session{ID: "s1"})
	assert.Empty(t, messages)
}
