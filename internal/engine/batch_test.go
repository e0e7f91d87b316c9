package engine_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Veraticus/billflow/internal/engine"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatch_SummaryCountsByAction(t *testing.T) {
	f := newFixture(t, engine.Config{Workers: 3})
	f.addDuke(t)

	f.classifier.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg model.Message) (*model.BillClassification, error) {
			switch msg.ID {
			case "duke-bill":
				return dukeClassification(), nil
			case "zelle-1":
				return &model.BillClassification{
					Vendor:                "Monique Roberts",
					VendorCategory:        model.CategoryTransfer,
					Amount:                dec("500"),
					IsPaymentConfirmation: true,
					Confidence:            85,
				}, nil
			default:
				return nil, nil
			}
		}).Times(3)
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	msgs := []model.Message{dukeBill, zelle, promo, {Subject: "missing id"}}

	var seen []string
	summary := f.engine.RunBatch(context.Background(), msgs, func(out engine.Outcome) {
		seen = append(seen, out.MessageID)
	})

	require.Len(t, summary.Outcomes, 4)
	assert.Equal(t, "duke-bill", summary.Outcomes[0].MessageID, "outcomes keep input order")
	assert.Equal(t, model.ActionCreatedNew, summary.Outcomes[0].Action)
	assert.Equal(t, model.ActionCreatedPaid, summary.Outcomes[1].Action)
	assert.Equal(t, model.ActionNotABill, summary.Outcomes[2].Action)
	assert.True(t, summary.Outcomes[3].Failed())

	assert.Equal(t, 1, summary.Counts[model.ActionCreatedNew])
	assert.Equal(t, 1, summary.Counts[model.ActionCreatedPaid])
	assert.Equal(t, 1, summary.Counts[model.ActionNotABill])
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Skipped)
	assert.Len(t, seen, 4)
}

func TestRunBatch_SecondRunIsAllAlreadyProcessed(t *testing.T) {
	f := newFixture(t, engine.Config{Workers: 2})
	f.classifier.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(nil, nil).Times(3)

	msgs := []model.Message{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	first := f.engine.RunBatch(context.Background(), msgs, nil)
	assert.Equal(t, 3, first.Counts[model.ActionNotABill])

	second := f.engine.RunBatch(context.Background(), msgs, nil)
	assert.Equal(t, 3, second.Counts[model.ActionAlreadyProcessed])
}

func TestRunBatch_CanceledBeforeStartSkipsEverything(t *testing.T) {
	f := newFixture(t, engine.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgs := []model.Message{dukeBill, zelle, promo}
	summary := f.engine.RunBatch(ctx, msgs, nil)

	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 3, summary.Counts[engine.ActionSkipped])
	assert.Zero(t, summary.Failed)
	for _, out := range summary.Outcomes {
		assert.True(t, out.Skipped)
		assert.ErrorIs(t, out.Err, context.Canceled)
		assert.False(t, out.Failed())
	}
	assert.Empty(t, f.bills(t))
}

func TestRunBatch_CancelBetweenMessages(t *testing.T) {
	f := newFixture(t, engine.Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	f.classifier.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, model.Message) (*model.BillClassification, error) {
			if calls.Add(1) == 2 {
				cancel()
			}
			return nil, nil
		}).Times(2)

	msgs := make([]model.Message, 6)
	for i := range msgs {
		msgs[i] = model.Message{ID: fmt.Sprintf("m%d", i)}
	}

	summary := f.engine.RunBatch(ctx, msgs, nil)

	assert.Equal(t, 2, summary.Counts[model.ActionNotABill], "started messages finish")
	assert.Equal(t, 4, summary.Skipped)
	for _, out := range summary.Outcomes[2:] {
		assert.True(t, out.Skipped)
	}
	assert.NotNil(t, f.processed(t, "m1"))
	assert.Nil(t, f.processed(t, "m2"))
}

func TestRunBatch_SameVendorAndPeriodCreatesOneInstance(t *testing.T) {
	f := newFixture(t, engine.Config{Workers: 8})
	f.addDuke(t)
	f.addParties(t, "alice", "bob")

	f.classifier.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, model.Message) (*model.BillClassification, error) {
			return dukeClassification(), nil
		}).Times(8)

	var mu sync.Mutex
	var events []model.LedgerEvent
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev model.LedgerEvent) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
			return nil
		}).Times(1)

	msgs := make([]model.Message, 8)
	for i := range msgs {
		msgs[i] = model.Message{ID: fmt.Sprintf("duke-%d", i), From: dukeBill.From, Subject: dukeBill.Subject}
	}

	summary := f.engine.RunBatch(context.Background(), msgs, nil)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 1, summary.Counts[model.ActionCreatedNew])
	assert.Equal(t, 7, summary.Counts[model.ActionUpdatedExisting])

	bills := f.bills(t)
	require.Len(t, bills, 1)
	require.Len(t, bills[0].Allocations, 2)
	assert.Len(t, events, 1)
}
