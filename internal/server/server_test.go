package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"redvote/internal/model"
	"redvote/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *store.Archive) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	st, err := store.NewRedisStore(&redis.Options{Addr: mr.Addr()}, false)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	archive, err := store.OpenArchive(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	return NewServer(st, archive, zap.NewNop()), archive
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_PostAndList(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/articles", `{"user":"orhan","title":"article 1","link":"http://article1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var created map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, uint64(1), created["id"])

	rec = do(t, s, "GET", "/articles?page=1&order=score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var articles []model.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &articles))
	require.Len(t, articles, 1)
	assert.Equal(t, "article 1", articles[0].Title)
	assert.Equal(t, "orhan", articles[0].Poster)

	rec = do(t, s, "GET", "/articles/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Vote(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, "POST", "/articles", `{"user":"orhan","title":"t","link":"http://l"}`)

	rec := do(t, s, "POST", "/articles/1/votes", `{"user":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"voted":true}`, rec.Body.String())

	rec = do(t, s, "POST", "/articles/1/votes", `{"user":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"voted":false}`, rec.Body.String())

	rec = do(t, s, "POST", "/articles/9/votes", `{"user":"alice"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Groups(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, "POST", "/articles", `{"user":"orhan","title":"t","link":"http://l"}`)

	rec := do(t, s, "PUT", "/articles/1/groups", `{"add":["golang"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(t, s, "GET", "/groups/golang/articles?order=time", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var articles []model.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &articles))
	require.Len(t, articles, 1)
	assert.Equal(t, uint64(1), articles[0].ID)
}

func TestServer_Snapshot(t *testing.T) {
	s, archive := newTestServer(t)

	rec := do(t, s, "GET", "/articles/1/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, archive.SaveSnapshot(context.Background(), &model.Snapshot{
		ArticleID: 1,
		Title:     "Saved",
		Content:   "<p>body</p>",
		Status:    model.StatusArchived,
	}))
	rec = do(t, s, "GET", "/articles/1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "<p>body</p>", snap.Content)
}

func TestServer_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{"POST", "/articles", `not json`, http.StatusBadRequest},
		{"POST", "/articles", `{"user":"u"}`, http.StatusBadRequest},
		{"GET", "/articles?page=0", "", http.StatusBadRequest},
		{"GET", "/articles?order=votes", "", http.StatusBadRequest},
		{"POST", "/articles/1/votes", `{}`, http.StatusBadRequest},
		{"GET", "/articles/999", "", http.StatusNotFound},
		{"GET", "/articles/abc", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, s, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.want, rec.Code, "%s %s", tt.method, tt.path)
	}
}
