package operations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationErrorMessage(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name string
		err  *OperationError
		want string
	}{
		{"execution keeps cause", NewExecutionError("job-1", cause), "[execution] job job-1: job processing failed: disk full"},
		{"validation keeps cause", NewValidationError("invalid job request", cause), "[validation] invalid job request: disk full"},
		{"no cause", NewNotFoundError("job-2"), "[not_found] job job-2: job not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	assert.ErrorIs(t, NewExecutionError("job-1", cause), cause)
}
