package services

import (
	"fmt"

	"github.com/google/uuid"
)

// PurchaseFailedError reports a purchase the ledger rejected or that never
// reached the ledger. The catalog is untouched when this is returned.
type PurchaseFailedError struct {
	AssetID uuid.UUID
	Reason  string
}

func (e *PurchaseFailedError) Error() string {
	return fmt.Sprintf("purchase of asset %s failed: %s", e.AssetID, e.Reason)
}
