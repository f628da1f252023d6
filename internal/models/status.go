package models

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
	StatusDeleted   MessageStatus = "deleted"
)

// statusPriority ranks statuses so that late-arriving webhooks can never
// downgrade a record. The provider delivers status events at-least-once and
// out of order, so a delayed "delivered" may arrive after "read" was already
// applied. failed and deleted are terminal; deleted outranks failed so a
// recipient-side deletion is never overwritten by a stale failure report.
var statusPriority = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
	StatusFailed:    4,
	StatusDeleted:   5,
}

// Priority returns the rank of s, or -1 for unknown statuses.
func (s MessageStatus) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return -1
}

// StatusShouldUpdate reports whether next may replace current. Equal ranks
// are allowed so replayed events stay idempotent no-ops on the same value.
func StatusShouldUpdate(current, next MessageStatus) bool {
	return next.Priority() >= current.Priority()
}

// validWebhookStatuses is the set the provider sends in status webhooks.
// deleted arrives through a separate webhook type and is honored by the
// ranking table but is not accepted from the standard status payload.
var validWebhookStatuses = map[MessageStatus]struct{}{
	StatusSent: {}, StatusDelivered: {}, StatusRead: {}, StatusFailed: {},
}

// ValidWebhookStatus reports whether s is allowed in a status webhook.
func ValidWebhookStatus(s MessageStatus) bool {
	_, ok := validWebhookStatuses[s]
	return ok
}
