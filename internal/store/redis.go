package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"redvote/internal/model"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const popTimeout = time.Second

// RedisStore implements Store on top of Redis sets, sorted sets and hashes.
type RedisStore struct {
	rdb *redis.Client

	// queueFetch makes Post push new ids onto the snapshot queue.
	queueFetch bool
	flight     singleflight.Group
	now        func() time.Time
}

// NewRedisStore connects to Redis and checks the connection.
// Pass queueFetch=false when no snapshot worker will drain the queue.
func NewRedisStore(opts *redis.Options, queueFetch bool) (*RedisStore, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb, queueFetch: queueFetch, now: time.Now}, nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Vote records user's vote on articleKey. It returns false when the voting
// window has closed or the user already voted.
func (s *RedisStore) Vote(ctx context.Context, user, articleKey string) (bool, error) {
	cutoff := s.now().Add(-model.VoteWindow).Unix()

	posted, err := s.rdb.ZScore(ctx, string(model.OrderTime), articleKey).Result()
	if err == redis.Nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, articleKey)
	} else if err != nil {
		return false, fmt.Errorf("vote: read post time: %w", err)
	}
	if posted < float64(cutoff) {
		return false, nil
	}

	id, err := model.ParseArticleKey(articleKey)
	if err != nil {
		return false, err
	}

	added, err := s.rdb.SAdd(ctx, model.VotedKey(id), user).Result()
	if err != nil {
		return false, fmt.Errorf("vote: record voter: %w", err)
	}
	if added != 1 {
		return false, nil
	}

	// Score and counter move together.
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZIncrBy(ctx, string(model.OrderScore), model.VoteScore, articleKey)
		pipe.HIncrBy(ctx, articleKey, "votes", 1)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("vote: update score: %w", err)
	}
	return true, nil
}

// Post stores a new article and returns its id. The poster counts as the
// first voter.
func (s *RedisStore) Post(ctx context.Context, user, title, link string) (uint64, error) {
	n, err := s.rdb.Incr(ctx, model.ArticleCounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("post: allocate id: %w", err)
	}
	id := uint64(n)

	now := s.now().Unix()
	article := model.Article{
		ID:     id,
		Key:    model.ArticleKey(id),
		Title:  title,
		Link:   link,
		Poster: user,
		Time:   now,
		Votes:  1,
	}

	voted := model.VotedKey(id)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, voted, user)
		pipe.Expire(ctx, voted, model.VoterSetTTL)
		pipe.HSet(ctx, article.Key, article.Hash())
		pipe.ZAdd(ctx, string(model.OrderScore), redis.Z{Score: float64(now + model.VoteScore), Member: article.Key})
		pipe.ZAdd(ctx, string(model.OrderTime), redis.Z{Score: float64(now), Member: article.Key})
		if s.queueFetch && link != "" {
			pipe.LPush(ctx, model.FetchQueueKey, strconv.FormatUint(id, 10))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("post: write article %d: %w", id, err)
	}
	return id, nil
}

// Get returns a single article by id.
func (s *RedisStore) Get(ctx context.Context, id uint64) (*model.Article, error) {
	key := model.ArticleKey(id)
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	a, err := model.FromHash(key, fields)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns one page of articles ranked by order, highest first.
func (s *RedisStore) List(ctx context.Context, page int, order model.Order) ([]model.Article, error) {
	if order != model.OrderScore && order != model.OrderTime {
		return nil, ErrInvalidOrder
	}
	return s.page(ctx, page, string(order))
}

func (s *RedisStore) page(ctx context.Context, page int, key string) ([]model.Article, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	start := int64(page-1) * model.ArticlesPerPage
	end := start + model.ArticlesPerPage - 1

	keys, err := s.rdb.ZRevRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	if len(keys) == 0 {
		return []model.Article{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: fetch articles: %w", key, err)
	}

	articles := make([]model.Article, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: %s listed in %s", ErrNotFound, keys[i], key)
		}
		a, err := model.FromHash(keys[i], fields)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// SetGroups removes the article from the remove groups, then adds it to
// the add groups. A group named in both ends up containing the article.
func (s *RedisStore) SetGroups(ctx context.Context, id uint64, add, remove []string) (bool, error) {
	key := model.ArticleKey(id)
	for _, g := range remove {
		if err := s.rdb.SRem(ctx, model.GroupKey(g), key).Err(); err != nil {
			return false, fmt.Errorf("remove %s from group %q: %w", key, g, err)
		}
	}
	for _, g := range add {
		if err := s.rdb.SAdd(ctx, model.GroupKey(g), key).Err(); err != nil {
			return false, fmt.Errorf("add %s to group %q: %w", key, g, err)
		}
	}
	return true, nil
}

// ListGroup pages through a group's articles ranked by order. The ranking
// is computed on first use and reused until it expires.
func (s *RedisStore) ListGroup(ctx context.Context, group string, page int, order model.Order) ([]model.Article, error) {
	if order != model.OrderScore && order != model.OrderTime {
		return nil, ErrInvalidOrder
	}
	if page < 1 {
		return nil, ErrInvalidPage
	}

	key := model.GroupCacheKey(order, group)
	_, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return nil, s.rankGroup(ctx, key, group, order)
	})
	if err != nil {
		return nil, err
	}
	return s.page(ctx, page, key)
}

func (s *RedisStore) rankGroup(ctx context.Context, key, group string, order model.Order) error {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("group %q: check cache: %w", group, err)
	}
	if n > 0 {
		return nil
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZInterStore(ctx, key, &redis.ZStore{
			Keys:      []string{model.GroupKey(group), string(order)},
			Aggregate: "MAX",
		})
		pipe.Expire(ctx, key, model.GroupCacheTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("group %q: rank: %w", group, err)
	}
	return nil
}

// PopFetch blocks until an article id is waiting on the snapshot queue or
// ctx is done.
func (s *RedisStore) PopFetch(ctx context.Context) (uint64, error) {
	var result []string
	for {
		// Short blocking rounds so cancellation is noticed.
		var err error
		result, err = s.rdb.BRPop(ctx, popTimeout, model.FetchQueueKey).Result()
		if err == redis.Nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			continue
		}
		if err != nil {
			return 0, err
		}
		break
	}
	id, err := strconv.ParseUint(result[1], 10, 64)
	if err != nil {
		return 0, errors.Join(ErrMalformedKey, err)
	}
	return id, nil
}
