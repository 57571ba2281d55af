package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"redvote/internal/model"
	"redvote/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	store     store.Store
	snapshots store.Snapshots
	logger    *zap.Logger
	router    *mux.Router
	server    *http.Server
}

func NewServer(st store.Store, snapshots store.Snapshots, logger *zap.Logger) *Server {
	s := &Server{
		store:     st,
		snapshots: snapshots,
		logger:    logger,
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID)

	s.router.HandleFunc("/articles", s.handlePost).Methods("POST")
	s.router.HandleFunc("/articles", s.handleList).Methods("GET")
	s.router.HandleFunc("/articles/{id:[0-9]+}", s.handleGet).Methods("GET")
	s.router.HandleFunc("/articles/{id:[0-9]+}/votes", s.handleVote).Methods("POST")
	s.router.HandleFunc("/articles/{id:[0-9]+}/groups", s.handleSetGroups).Methods("PUT")
	s.router.HandleFunc("/articles/{id:[0-9]+}/snapshot", s.handleSnapshot).Methods("GET")
	s.router.HandleFunc("/groups/{group}/articles", s.handleListGroup).Methods("GET")
}

// ServeHTTP lets the server be mounted or tested without listening.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Web server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

type postRequest struct {
	User  string `json:"user"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

type voteRequest struct {
	User string `json:"user"`
}

type groupsRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.User == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "user and title are required")
		return
	}

	id, err := s.store.Post(r.Context(), req.User, req.Title, req.Link)
	if err != nil {
		s.fail(w, "Failed to post article", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, order, ok := pageParams(w, r)
	if !ok {
		return
	}
	articles, err := s.store.List(r.Context(), page, order)
	if err != nil {
		s.fail(w, "Failed to list articles", err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	article, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, "Failed to get article", err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	voted, err := s.store.Vote(r.Context(), req.User, model.ArticleKey(id))
	if err != nil {
		s.fail(w, "Failed to vote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"voted": voted})
}

func (s *Server) handleSetGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	var req groupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	done, err := s.store.SetGroups(r.Context(), id, req.Add, req.Remove)
	if err != nil {
		s.fail(w, "Failed to update groups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": done})
}

func (s *Server) handleListGroup(w http.ResponseWriter, r *http.Request) {
	page, order, ok := pageParams(w, r)
	if !ok {
		return
	}
	group := mux.Vars(r)["group"]
	articles, err := s.store.ListGroup(r.Context(), group, page, order)
	if err != nil {
		s.fail(w, "Failed to list group", err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	snap, err := s.snapshots.Snapshot(r.Context(), id)
	if err != nil {
		s.fail(w, "Failed to read snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// fail maps store errors onto status codes; only unexpected ones are logged.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrMalformedKey),
		errors.Is(err, store.ErrInvalidPage),
		errors.Is(err, store.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrArchiveDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func articleID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	return id, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (int, model.Order, bool) {
	q := r.URL.Query()
	page := 1
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return 0, "", false
		}
		page = n
	}
	order, ok := model.ParseOrder(q.Get("order"))
	if !ok {
		writeError(w, http.StatusBadRequest, "order must be score or time")
		return 0, "", false
	}
	return page, order, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
