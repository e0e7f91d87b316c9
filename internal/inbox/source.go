// Package inbox fetches messages to reconcile from local files or Gmail.
package inbox

import (
	"context"

	"github.com/Veraticus/billflow/internal/model"
)

// Source yields the messages for one reconcile run.
type Source interface {
	Fetch(ctx context.Context) ([]model.Message, error)
}
