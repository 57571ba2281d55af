package model

import "time"

type SnapshotStatus string

const (
	StatusArchived SnapshotStatus = "archived"
	StatusFailed   SnapshotStatus = "failed"
)

// Snapshot is the readable copy of an article's link, fetched after posting.
type Snapshot struct {
	ArticleID    uint64         `json:"article_id"`
	Link         string         `json:"link"`
	Title        string         `json:"title"`
	Excerpt      string         `json:"excerpt"`
	Content      string         `json:"content,omitempty"`
	Status       SnapshotStatus `json:"status"`
	FetchedAt    time.Time      `json:"fetched_at"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
