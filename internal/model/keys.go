package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Redis key layout. These names are part of the storage schema.
const (
	ArticleCounterKey = "article:"
	FetchQueueKey     = "queue:fetch"

	articlePrefix = "article:"
	votedPrefix   = "voted:"
	groupPrefix   = "group:"
)

var ErrMalformedKey = errors.New("malformed article key")

func ArticleKey(id uint64) string {
	return articlePrefix + strconv.FormatUint(id, 10)
}

func VotedKey(id uint64) string {
	return votedPrefix + strconv.FormatUint(id, 10)
}

func GroupKey(name string) string {
	return groupPrefix + name
}

// GroupCacheKey is the key holding the ranking of group under order.
func GroupCacheKey(order Order, group string) string {
	return string(order) + group
}

// ParseArticleKey extracts the numeric id following the last ':'.
func ParseArticleKey(key string) (uint64, error) {
	idx := strings.LastIndexByte(key, ':')
	id, err := strconv.ParseUint(key[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return id, nil
}
