package model

import "time"

// Action names what processing a message did to the ledger.
type Action string

// Reconciliation actions.
const (
	ActionCreatedNew       Action = "created_new"
	ActionCreatedPaid      Action = "created_paid"
	ActionMarkedPaid       Action = "marked_paid"
	ActionUpdatedExisting  Action = "updated_existing"
	ActionAlreadyProcessed Action = "already_processed"
	ActionNotABill         Action = "not_a_bill"
)

// ProcessedMessage records that a source message has been handled.
type ProcessedMessage struct {
	ProcessedAt     time.Time
	SourceMessageID string
	MatchedVendor   string
	BillInstanceID  string
	Action          Action
	ClassifierError string
}
