// Package devserver is a local stand-in for the posyandu REST API, backed by
// SQLite. It exists for integration tests and the demo CLI; it counts the
// requests it serves so callers can tell whether a read reached the network.
package devserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutrilogic/datacache/internal/api"
	"github.com/nutrilogic/datacache/keys"
)

// Route patterns, also the keys of Hits.
const (
	RouteLogin          = "POST /api/login"
	RouteLogout         = "POST /api/logout"
	RouteListChildren   = "GET /api/{role}/children"
	RouteGetChild       = "GET /api/{role}/children/{id}"
	RouteDashboard      = "GET /api/{role}/dashboard"
	RoutePriority       = "GET /api/{role}/priority-children"
	RouteCreateChild    = "POST /api/{role}/children"
	RouteUpdateChild    = "PUT /api/{role}/children/{id}"
	RouteDeleteChild    = "DELETE /api/{role}/children/{id}"
	routeHealth         = "GET /healthz"
	defaultSeedPassword = "password"
)

// Server serves the stand-in API.
type Server struct {
	store  *store
	mux    *http.ServeMux
	logger zerolog.Logger

	mu     sync.Mutex
	hits   map[string]int
	tokens map[string]api.User
}

// New opens (and migrates) the SQLite database at dsn.
func New(dsn string, logger zerolog.Logger) (*Server, error) {
	st, err := openStore(dsn)
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:  st,
		mux:    http.NewServeMux(),
		logger: logger.With().Str("component", "devserver").Logger(),
		hits:   make(map[string]int),
		tokens: make(map[string]api.User),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc(routeHealth, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.handle(RouteLogin, s.handleLogin)
	s.handle(RouteLogout, s.authed(s.handleLogout))
	s.handle(RouteListChildren, s.authed(s.handleListChildren))
	s.handle(RouteGetChild, s.authed(s.handleGetChild))
	s.handle(RouteDashboard, s.authed(s.handleDashboard))
	s.handle(RoutePriority, s.authed(s.handlePriority))
	s.handle(RouteCreateChild, s.authed(s.kaderOnly(s.handleCreateChild)))
	s.handle(RouteUpdateChild, s.authed(s.kaderOnly(s.handleUpdateChild)))
	s.handle(RouteDeleteChild, s.authed(s.kaderOnly(s.handleDeleteChild)))
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[pattern]++
		s.mu.Unlock()
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		h(w, r)
	})
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler { return s.mux }

// Hits returns how many requests matched the route pattern.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// ResetHits zeroes every request counter.
func (s *Server) ResetHits() {
	s.mu.Lock()
	s.hits = make(map[string]int)
	s.mu.Unlock()
}

// Close closes the database.
func (s *Server) Close() error { return s.store.close() }

// Seed creates a kader, a parent and a handful of children, and returns
// the two accounts. The password of both is "password".
func (s *Server) Seed(ctx context.Context) (kader, parent api.User, err error) {
	kaderID, err := s.store.createUser(ctx, "Siti Kader", "kader@posyandu.test", defaultSeedPassword, string(keys.RoleKader))
	if err != nil {
		return kader, parent, err
	}
	parentID, err := s.store.createUser(ctx, "Dewi Orang Tua", "parent@posyandu.test", defaultSeedPassword, string(keys.RoleParent))
	if err != nil {
		return kader, parent, err
	}
	otherID, err := s.store.createUser(ctx, "Rina Orang Tua", "rina@posyandu.test", defaultSeedPassword, string(keys.RoleParent))
	if err != nil {
		return kader, parent, err
	}

	seed := []api.Child{
		{ParentID: parentID, Name: "Ani", Gender: "P", BirthDate: "2022-04-11", WeightKg: 11.2, HeightCm: 86, NutritionStatus: StatusNormal, IsActive: true},
		{ParentID: parentID, Name: "Bayu", Gender: "L", BirthDate: "2023-01-20", WeightKg: 7.9, HeightCm: 70, NutritionStatus: "gizi_kurang", IsActive: true},
		{ParentID: otherID, Name: "Citra", Gender: "P", BirthDate: "2021-09-02", WeightKg: 10.1, HeightCm: 82, NutritionStatus: "stunting", IsActive: true},
		{ParentID: otherID, Name: "Dimas", Gender: "L", BirthDate: "2019-06-30", WeightKg: 16.5, HeightCm: 105, NutritionStatus: StatusNormal, IsActive: false},
	}
	for _, c := range seed {
		if _, err := s.store.insertChild(ctx, c); err != nil {
			return kader, parent, err
		}
	}

	kader = api.User{ID: kaderID, Name: "Siti Kader", Email: "kader@posyandu.test", Role: string(keys.RoleKader)}
	parent = api.User{ID: parentID, Name: "Dewi Orang Tua", Email: "parent@posyandu.test", Role: string(keys.RoleParent)}
	return kader, parent, nil
}

type userKey struct{}

func userFrom(r *http.Request) api.User {
	u, _ := r.Context().Value(userKey{}).(api.User)
	return u
}

// authed resolves the bearer token and checks the {role} path segment
// against the user's role.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		user, found := s.tokens[token]
		s.mu.Unlock()
		if !ok || !found {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		if role := r.PathValue("role"); role != "" && role != user.Role {
			writeError(w, http.StatusForbidden, "role mismatch")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func (s *Server) kaderOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r).Role != string(keys.RoleKader) {
			writeError(w, http.StatusForbidden, "only kader may modify child records")
			return
		}
		next(w, r)
	}
}

// scope limits parents to their own children.
func scope(u api.User) int64 {
	if u.Role == string(keys.RoleParent) {
		return u.ID
	}
	return 0
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := s.store.userByEmail(r.Context(), body.Email)
	if err != nil || subtle.ConstantTimeCompare([]byte(u.Password), []byte(body.Password)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = u.User
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.LoginResult{Token: token, User: u.User})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	q := listQuery{
		ParentID: scope(userFrom(r)),
		Status:   r.URL.Query().Get("status"),
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
	}
	switch r.URL.Query().Get("is_active") {
	case "1", "true":
		q.Active = keys.Bool(true)
	case "0", "false":
		q.Active = keys.Bool(false)
	}
	children, err := s.store.listChildren(r.Context(), q)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Envelope[[]api.Child]{Data: children})
}

func (s *Server) childFromPath(w http.ResponseWriter, r *http.Request) (api.Child, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid child id")
		return api.Child{}, false
	}
	c, err := s.store.getChild(r.Context(), id)
	if errors.Is(err, errNoRows) {
		writeError(w, http.StatusNotFound, "child not found")
		return api.Child{}, false
	} else if err != nil {
		s.internalError(w, err)
		return api.Child{}, false
	}
	if p := scope(userFrom(r)); p != 0 && c.ParentID != p {
		writeError(w, http.StatusNotFound, "child not found")
		return api.Child{}, false
	}
	return c, true
}

func (s *Server) handleGetChild(w http.ResponseWriter, r *http.Request) {
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, api.Envelope[api.Child]{Data: c})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.dashboard(r.Context(), scope(userFrom(r)))
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Envelope[api.DashboardSummary]{Data: sum})
}

func (s *Server) handlePriority(w http.ResponseWriter, r *http.Request) {
	children, err := s.store.priorityChildren(r.Context(), scope(userFrom(r)))
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Envelope[[]api.Child]{Data: children})
}

// apply copies the non-nil fields of in onto c.
func apply(c *api.Child, in api.ChildInput) {
	if in.ParentID != nil {
		c.ParentID = *in.ParentID
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Gender != nil {
		c.Gender = strings.ToUpper(strings.TrimSpace(*in.Gender))
	}
	if in.BirthDate != nil {
		c.BirthDate = *in.BirthDate
	}
	if in.WeightKg != nil {
		c.WeightKg = *in.WeightKg
	}
	if in.HeightCm != nil {
		c.HeightCm = *in.HeightCm
	}
	if in.NutritionStatus != nil {
		c.NutritionStatus = strings.ToLower(strings.TrimSpace(*in.NutritionStatus))
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

func validateChild(c api.Child) string {
	switch {
	case c.Name == "":
		return "name is required"
	case c.Gender != "L" && c.Gender != "P":
		return "gender must be L or P"
	case c.BirthDate == "":
		return "birth_date is required"
	case c.ParentID <= 0:
		return "parent_id is required"
	}
	return ""
}

func (s *Server) handleCreateChild(w http.ResponseWriter, r *http.Request) {
	var in api.ChildInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	c := api.Child{NutritionStatus: StatusNormal, IsActive: true}
	apply(&c, in)
	if msg := validateChild(c); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	created, err := s.store.insertChild(r.Context(), c)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.Envelope[api.Child]{Data: created})
}

func (s *Server) handleUpdateChild(w http.ResponseWriter, r *http.Request) {
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	var in api.ChildInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	apply(&c, in)
	if msg := validateChild(c); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	updated, err := s.store.updateChild(r.Context(), c)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Envelope[api.Child]{Data: updated})
}

func (s *Server) handleDeleteChild(w http.ResponseWriter, r *http.Request) {
	c, ok := s.childFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.deleteChild(r.Context(), c.ID); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorBody{Message: msg})
}
