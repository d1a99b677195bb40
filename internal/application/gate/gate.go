// Package gate holds the pure predicates guarding payment approval and
// organization activation. The review service re-evaluates them inside its
// write transaction; nothing here caches or mutates.
package gate

import (
	"assohub-backend/internal/application/projector"
	"assohub-backend/internal/domain"

	"github.com/google/uuid"
)

// BlockingSlot names one document slot preventing payment approval, with its
// current status so callers can present "N pending / M rejected".
type BlockingSlot struct {
	SlotKey     string `json:"slot_key"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// CanApprovePayment is true iff every populated slot is approved. Slots with
// no artifact do not block; zero populated slots is vacuously approvable.
func CanApprovePayment(slots []projector.SlotProjection) (bool, []BlockingSlot) {
	var blocking []BlockingSlot
	for _, s := range slots {
		if !s.Populated() {
			continue
		}
		if s.Status != domain.DocStatusApproved {
			blocking = append(blocking, BlockingSlot{
				SlotKey:     s.SlotKey,
				DisplayName: s.DisplayName,
				Status:      s.Status,
			})
		}
	}
	return len(blocking) == 0, blocking
}

// CanActivateOrganization is true iff the organization is not yet approved and
// the payment just approved is its governing (most recent) payment.
func CanActivateOrganization(org *domain.Organization, paymentID, latestPaymentID uuid.UUID) bool {
	if org == nil || org.Status == domain.OrgStatusApproved {
		return false
	}
	return paymentID == latestPaymentID
}
