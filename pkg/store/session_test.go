package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendTurnKeepsWindow(t *testing.T) {
	s := &Session{ID: "s1", UserID: "u1"}

	for i := 0; i < HistoryLimit+5; i++ {
		s.AppendTurn("user", fmt.Sprintf("message %d", i))
	}

	assert.Len(t, s.History, HistoryLimit)
	// Oldest entries fall off, newest stays last
	assert.Equal(t, fmt.Sprintf("message %d", HistoryLimit+4), s.History[len(s.History)-1].Content)
	assert.Equal(t, "message 5", s.History[0].Content)
	assert.False(t, s.UpdatedAt.IsZero())
}

func TestAppendTurnRoles(t *testing.T) {
	s := &Session{ID: "s1"}
	s.AppendTurn("user", "question")
	s.AppendTurn("assistant", "answer")

	assert.Equal(t, "user", s.History[0].Role)
	assert.Equal(t, "assistant", s.History[1].Role)
}
