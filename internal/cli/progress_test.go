package cli

import (
	"bytes"
	"testing"

	"github.com/Veraticus/billflow/internal/engine"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestBatchProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewBatchProgress(&buf, 3)

	p.Observe(engine.Outcome{MessageID: "m1", Vendor: "City Power", Action: model.ActionCreatedNew})
	p.Observe(engine.Outcome{MessageID: "m2", Action: model.ActionNotABill})

	assert.Equal(t, 2, p.Count())
}
