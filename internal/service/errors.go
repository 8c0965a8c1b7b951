package service

import (
	"fmt"

	"github.com/zentag/api/internal/model"
)

// NotFoundError reports a lookup for a record that does not exist.
type NotFoundError struct {
	Kind model.JobKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
