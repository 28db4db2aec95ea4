package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxMessageLen is the maximum message content length after trimming.
const MaxMessageLen = 2000

// Message is one entry of the append-only per-case feed. No edit or
// delete exists; clients re-fetch on a polling interval.
type Message struct {
	ID         uuid.UUID `json:"id" db:"id"`
	MDTID      uuid.UUID `json:"mdt_id" db:"mdt_id"`
	AuthorID   uuid.UUID `json:"author_id" db:"author_id"`
	AuthorName string    `json:"author_name" db:"author_name"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// MessagePreview is the truncated last-message view on the case feed.
type MessagePreview struct {
	AuthorName string    `json:"author_name" db:"author_name"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PostMessageRequest represents message creation parameters
type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}
