package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// VoteWindow is how long after posting an article accepts votes.
	VoteWindow = 7 * 24 * time.Hour
	// VoterSetTTL bounds the lifetime of the per-article voter set.
	VoterSetTTL = VoteWindow
	// VoteScore is the score one vote adds to an article.
	VoteScore = 432
	// ArticlesPerPage is the fixed page size of every listing.
	ArticlesPerPage = 25
	// GroupCacheTTL is how long a computed group ranking is reused.
	GroupCacheTTL = 60 * time.Second
)

// Order names the global sorted set a listing is ranked by.
type Order string

const (
	OrderScore Order = "score:"
	OrderTime  Order = "time:"
)

// ParseOrder accepts both the raw key ("score:") and the bare name ("score").
func ParseOrder(s string) (Order, bool) {
	switch strings.TrimSuffix(s, ":") {
	case "", "score":
		return OrderScore, true
	case "time":
		return OrderTime, true
	}
	return "", false
}

// Article is the typed form of the article:<id> hash.
type Article struct {
	ID     uint64 `json:"id"`
	Key    string `json:"key"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Poster string `json:"poster"`
	Time   int64  `json:"time"`
	Votes  int64  `json:"votes"`
}

// PostedAt returns the post time as a time.Time.
func (a Article) PostedAt() time.Time {
	return time.Unix(a.Time, 0)
}

// Hash returns the field map written to the article hash.
func (a Article) Hash() map[string]interface{} {
	return map[string]interface{}{
		"title":  a.Title,
		"link":   a.Link,
		"poster": a.Poster,
		"time":   strconv.FormatInt(a.Time, 10),
		"votes":  strconv.FormatInt(a.Votes, 10),
	}
}

// FromHash builds an Article from the fields returned by HGETALL.
func FromHash(key string, fields map[string]string) (Article, error) {
	id, err := ParseArticleKey(key)
	if err != nil {
		return Article{}, err
	}
	a := Article{
		ID:     id,
		Key:    key,
		Title:  fields["title"],
		Link:   fields["link"],
		Poster: fields["poster"],
	}
	if v, ok := fields["time"]; ok {
		if a.Time, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Article{}, fmt.Errorf("article %s: bad time %q: %w", key, v, err)
		}
	}
	if v, ok := fields["votes"]; ok {
		if a.Votes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Article{}, fmt.Errorf("article %s: bad votes %q: %w", key, v, err)
		}
	}
	return a, nil
}
