package inventory

import "time"

// LedgerChange names the write that moved stock counters.
type LedgerChange string

const (
	// ChangePurchase follows RecordPurchase.
	ChangePurchase LedgerChange = "purchase"
	// ChangeSale follows RecordSale.
	ChangeSale LedgerChange = "sale"
	// ChangeSaleDeleted follows DeleteSale.
	ChangeSaleDeleted LedgerChange = "sale_deleted"
	// ChangeProduct follows product create, update or delete.
	ChangeProduct LedgerChange = "product"
)

// LedgerChangedEvent is emitted after a committed ledger write. Removed lists
// products the write deleted.
type LedgerChangedEvent struct {
	Change     LedgerChange
	Levels     []StockLevel
	Removed    []StockLevel
	UnitsMoved int64
	OccurredAt time.Time
}
