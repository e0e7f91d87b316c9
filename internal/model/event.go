package model

import "time"

// LedgerEvent announces a committed ledger change.
type LedgerEvent struct {
	OccurredAt time.Time
	Instance   BillInstance
	MessageID  string
	Action     Action
}
