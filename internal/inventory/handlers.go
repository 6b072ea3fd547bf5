package inventory

import "context"

// IntegrationHandler receives ledger events once a write has committed.
type IntegrationHandler interface {
	HandleLedgerChanged(ctx context.Context, evt LedgerChangedEvent) error
}
