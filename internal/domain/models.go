// Package domain defines the relay's data model: the Message that is fanned
// out to room sessions and appended to a room's history, the inbound webhook
// payload it is built from, and the GORM rows backing the durable key-value
// store.
package domain

import "time"

// TimestampLayout is the wire format of Message.Timestamp: UTC, millisecond
// precision, "Z" suffix (e.g. 2024-05-01T10:00:00.000Z).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// DefaultWebhookSender is stored as Message.Sender when a webhook omits it.
const DefaultWebhookSender = "webhook"

// Message is the unit of broadcast and persistence. Once appended to a room's
// history it is never rewritten.
//
// Media links and PlatformID are optional: nil pointers are omitted from the
// JSON encoding, while webhook-origin messages always carry the links as
// empty strings.
type Message struct {
	Content          string  `json:"content"                    example:"hello"`
	Sender           string  `json:"sender"                     example:"alice"`
	Timestamp        string  `json:"timestamp"                  example:"2024-05-01T10:00:00.000Z"`
	AudioFileLink    *string `json:"audioFileLink,omitempty"`
	VideoFileLink    *string `json:"videoFileLink,omitempty"`
	ImageFileLink    *string `json:"imageFileLink,omitempty"`
	DocumentFileLink *string `json:"documentFileLink,omitempty"`
	PlatformID       *string `json:"platformId,omitempty"       example:"tg-1234"`
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// WebhookPayload is the body accepted by POST /webhook/room/{id}.
// Every field is optional as far as the relay is concerned.
type WebhookPayload struct {
	Content          string  `json:"content"          example:"hello from upstream"`
	Sender           string  `json:"sender"           example:"alice"`
	PlatformID       *string `json:"platformId"       example:"tg-1234"`
	AudioFileLink    string  `json:"audioFileLink"`
	VideoFileLink    string  `json:"videoFileLink"`
	ImageFileLink    string  `json:"imageFileLink"`
	DocumentFileLink string  `json:"documentFileLink"`
}

// ToMessage applies the webhook defaulting policy: empty content stays "",
// empty sender becomes DefaultWebhookSender, and each media link is present
// as "" when missing. PlatformID is passed through untouched. The timestamp
// is left empty for the room actor to assign.
func (p WebhookPayload) ToMessage() Message {
	sender := p.Sender
	if sender == "" {
		sender = DefaultWebhookSender
	}
	return Message{
		Content:          p.Content,
		Sender:           sender,
		AudioFileLink:    strPtr(p.AudioFileLink),
		VideoFileLink:    strPtr(p.VideoFileLink),
		ImageFileLink:    strPtr(p.ImageFileLink),
		DocumentFileLink: strPtr(p.DocumentFileLink),
		PlatformID:       p.PlatformID,
	}
}

func strPtr(s string) *string { return &s }

// KVEntry is one row of the SQL-backed durable key-value store. Keys are the
// room-scoped names ("messages:{roomId}", "data:{roomId}"); values are JSON.
type KVEntry struct {
	Key       string    `gorm:"type:varchar(512);primaryKey"`
	Value     []byte    `gorm:"type:blob;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for KVEntry.
func (KVEntry) TableName() string { return "kv_entries" }
