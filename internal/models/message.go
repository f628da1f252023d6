// Package models defines data structures used throughout the application.
package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Direction indicates whether a message was received from or sent to the
// counterparty.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// MessageType is the provider-reported content type of a message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeImage       MessageType = "image"
	TypeVideo       MessageType = "video"
	TypeAudio       MessageType = "audio"
	TypeDocument    MessageType = "document"
	TypeLocation    MessageType = "location"
	TypeContacts    MessageType = "contacts"
	TypeInteractive MessageType = "interactive"
	TypeButton      MessageType = "button"
	TypeReaction    MessageType = "reaction"
)

var validMessageTypes = map[MessageType]struct{}{
	TypeText: {}, TypeImage: {}, TypeVideo: {}, TypeAudio: {},
	TypeDocument: {}, TypeLocation: {}, TypeContacts: {},
	TypeInteractive: {}, TypeButton: {}, TypeReaction: {},
}

// ValidMessageType reports whether t is one of the provider's message types.
func ValidMessageType(t MessageType) bool {
	_, ok := validMessageTypes[t]
	return ok
}

// Message represents one durable record per provider message id.
// A record may be a placeholder (type/body absent) when a status webhook
// outran its message webhook; the message reconciler completes it later.
type Message struct {
	ID              int64          `db:"id" json:"id"`
	WAMessageID     sql.NullString `db:"wa_message_id" json:"wa_message_id,omitempty"`
	FromPhone       sql.NullString `db:"from_phone" json:"from_phone,omitempty"`
	ToPhone         sql.NullString `db:"to_phone" json:"to_phone,omitempty"`
	Direction       Direction      `db:"direction" json:"direction"`
	MessageType     sql.NullString `db:"message_type" json:"message_type,omitempty"`
	Body            sql.NullString `db:"body" json:"body,omitempty"`
	Status          MessageStatus  `db:"status" json:"status"`
	StatusUpdatedAt sql.NullTime   `db:"status_updated_at" json:"status_updated_at,omitempty"`
	Payload         types.JSONText `db:"payload" json:"payload,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}
