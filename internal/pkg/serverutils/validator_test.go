package serverutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type askPayload struct {
	Query string `json:"query" validate:"required"`
}

func TestValidateRequestPasses(t *testing.T) {
	err := ValidateRequest(askPayload{Query: "what is the refund policy?"})
	assert.NoError(t, err)
}

func TestValidateRequestFailsOnMissingField(t *testing.T) {
	err := ValidateRequest(askPayload{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Query")
	assert.Contains(t, err.Error(), "required")
}
