package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest runs struct-tag validation and flattens failures
// into one readable error.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	messages := make([]string, len(errs))
	for i, fieldErr := range errs {
		messages[i] = fmt.Sprintf("field '%s' failed on '%s'", fieldErr.Field(), fieldErr.Tag())
	}
	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}
