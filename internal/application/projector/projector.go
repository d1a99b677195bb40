// Package projector derives current statuses from the notification event log.
// Everything here is a pure function over already-loaded rows: no DB handle,
// no clock, no mutation. The review service maintains the same values as
// cached columns; the projector is the reference reduction used on read paths
// and to audit the cache against the log.
package projector

import (
	"assohub-backend/internal/domain"
)

// SlotProjection is the derived view of one document slot.
type SlotProjection struct {
	SlotKey         string  `json:"slot_key"`
	DisplayName     string  `json:"display_name"`
	ArtifactRef     *string `json:"artifact_ref"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason"`
	ReuploadCount   int     `json:"reupload_count"`
}

// Populated reports whether the slot holds an artifact.
func (p SlotProjection) Populated() bool {
	return p.ArtifactRef != nil && *p.ArtifactRef != ""
}

func isDocumentKind(kind string) bool {
	switch kind {
	case domain.EventDocumentApproved, domain.EventDocumentRejected, domain.EventDocumentReuploaded:
		return true
	}
	return false
}

// latestSlotEvent picks the most recent document event referencing slotKey.
// Events are compared by creation time; equal timestamps fall back to slice
// order, so callers loading oldest-first get last-writer-wins either way.
func latestSlotEvent(events []domain.NotificationEvent, slotKey string) *domain.NotificationEvent {
	var latest *domain.NotificationEvent
	for i := range events {
		ev := &events[i]
		if !isDocumentKind(ev.Kind) || ev.SlotKey == nil || *ev.SlotKey != slotKey {
			continue
		}
		if latest == nil || !ev.CreatedAt.Before(latest.CreatedAt) {
			latest = ev
		}
	}
	return latest
}

// ProjectSlot reduces the event log to the current status of one slot.
// Latest matching event wins: approved, rejected, or pending (reuploaded).
// With no matching event the slot is pending if an artifact exists, else
// not_uploaded. A non-empty rejection reason without a later approval event
// forces rejected.
func ProjectSlot(events []domain.NotificationEvent, slotKey string, hasArtifact bool, rejectionReason string) string {
	latest := latestSlotEvent(events, slotKey)

	status := ""
	if latest != nil {
		switch latest.Kind {
		case domain.EventDocumentApproved:
			status = domain.DocStatusApproved
		case domain.EventDocumentRejected:
			status = domain.DocStatusRejected
		case domain.EventDocumentReuploaded:
			status = domain.DocStatusPending
		}
	}
	if status == "" {
		if hasArtifact {
			status = domain.DocStatusPending
		} else {
			status = domain.DocStatusNotUploaded
		}
	}
	if rejectionReason != "" && status != domain.DocStatusApproved {
		status = domain.DocStatusRejected
	}
	return status
}

// ProjectSlots projects every registered slot for an organization. docs may be
// sparse (slots with no row yet project as not_uploaded).
func ProjectSlots(events []domain.NotificationEvent, docs []domain.Document) []SlotProjection {
	byKey := make(map[string]*domain.Document, len(docs))
	for i := range docs {
		byKey[docs[i].SlotKey] = &docs[i]
	}

	out := make([]SlotProjection, 0, len(domain.Slots))
	for _, slot := range domain.Slots {
		p := SlotProjection{SlotKey: slot.Key, DisplayName: slot.DisplayName}
		reason := ""
		if doc, ok := byKey[slot.Key]; ok {
			p.ArtifactRef = doc.ArtifactRef
			p.RejectionReason = doc.RejectionReason
			p.ReuploadCount = doc.ReuploadCount
			if doc.RejectionReason != nil {
				reason = *doc.RejectionReason
			}
		}
		p.Status = ProjectSlot(events, slot.Key, p.Populated(), reason)
		out = append(out, p)
	}
	return out
}

// ProjectOrganization aggregates slot and payment state into the derived
// organization status. An activated organization stays approved regardless of
// later document events; activation is only reverted by an explicit
// membership-revocation action outside this engine.
func ProjectOrganization(org *domain.Organization, slots []SlotProjection, latestPayment *domain.Payment) string {
	if org.Status == domain.OrgStatusApproved {
		return domain.OrgStatusApproved
	}
	anyPopulated := false
	anyRejected := false
	for _, s := range slots {
		if s.Populated() {
			anyPopulated = true
		}
		if s.Status == domain.DocStatusRejected {
			anyRejected = true
		}
	}
	if latestPayment != nil && latestPayment.Status == domain.PaymentStatusRejected {
		anyRejected = true
	}
	if anyRejected {
		return domain.OrgStatusRejected
	}
	if !anyPopulated && latestPayment == nil {
		return domain.OrgStatusNone
	}
	return domain.OrgStatusPending
}
