package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var fakeSigningKey = []byte("fake-testzeus")

// FakeUser is an account known to FakeTestZeus.
type FakeUser struct {
	ID       string
	Email    string
	Password string
	Tenant   string
}

// FakeTestZeus is an in-process PocketBase-style TestZeus API. It keeps
// records in memory, issues HS256 JWTs and counts every request.
type FakeTestZeus struct {
	*httptest.Server

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	mu        sync.Mutex
	users     map[string]FakeUser
	tokens    map[string]FakeUser
	records   map[string][]map[string]any
	lastQuery map[string]url.Values
	failures  map[string]int
	requests  int
	logins    int
	refreshes int
}

// NewFakeTestZeus starts a fake API with one user. The server is closed
// when the test ends.
func NewFakeTestZeus(t testing.TB, email, password string) *FakeTestZeus {
	t.Helper()

	f := &FakeTestZeus{
		TokenTTL:  time.Hour,
		users:     map[string]FakeUser{},
		tokens:    map[string]FakeUser{},
		records:   map[string][]map[string]any{},
		lastQuery: map[string]url.Values{},
		failures:  map[string]int{},
	}
	f.AddUser(FakeUser{Email: email, Password: password, Tenant: NewRecordID()})

	r := chi.NewRouter()
	r.Post("/api/collections/users/auth-with-password", f.handleAuth)
	r.Post("/api/collections/users/auth-refresh", f.handleRefresh)
	r.Route("/api/collections/{collection}/records", func(r chi.Router) {
		r.Use(f.requireToken)
		r.Get("/", f.handleList)
		r.Post("/", f.handleCreate)
		r.Get("/{id}", f.handleGet)
		r.Patch("/{id}", f.handleUpdate)
		r.Delete("/{id}", f.handleDelete)
	})

	f.Server = httptest.NewServer(f.count(r))
	t.Cleanup(f.Close)
	return f
}

// NewRecordID returns a 15 character lowercase id like PocketBase generates.
func NewRecordID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:15]
}

// AddUser registers an account.
func (f *FakeTestZeus) AddUser(u FakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = NewRecordID()
	}
	f.users[u.Email] = u
}

// Seed stores a record directly and returns its id.
func (f *FakeTestZeus) Seed(collection string, fields map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(collection, fields)
}

// Record returns a copy of a stored record, or nil.
func (f *FakeTestZeus) Record(collection, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec := f.find(collection, id); rec != nil {
		return copyRecord(rec)
	}
	return nil
}

// Count returns how many records a collection holds.
func (f *FakeTestZeus) Count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[collection])
}

// FailCollection makes every record request on collection answer status.
func (f *FakeTestZeus) FailCollection(collection string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[collection] = status
}

// Requests returns the total number of requests served.
func (f *FakeTestZeus) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// Logins returns the number of password handshakes attempted.
func (f *FakeTestZeus) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// Refreshes returns the number of token refreshes attempted.
func (f *FakeTestZeus) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// DataRequests returns requests that were neither handshakes nor refreshes.
func (f *FakeTestZeus) DataRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests - f.logins - f.refreshes
}

// LastQuery returns the query of the most recent list call on collection.
func (f *FakeTestZeus) LastQuery(collection string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery[collection]
}

// Token issues a token for email directly, bypassing the handshake.
func (f *FakeTestZeus) Token(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issue(f.users[email])
}

func (f *FakeTestZeus) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeTestZeus) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity string `json:"identity"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++

	u, ok := f.users[body.Identity]
	if !ok || u.Password != body.Password {
		writeError(w, http.StatusBadRequest, "Failed to authenticate.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":  f.issue(u),
		"record": userRecord(u),
	})
}

func (f *FakeTestZeus) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++

	u, ok := f.validToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":  f.issue(u),
		"record": userRecord(u),
	})
}

func (f *FakeTestZeus) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		_, ok := f.validToken(r.Header.Get("Authorization"))
		status := f.failures[chi.URLParam(r, "collection")]
		f.mu.Unlock()

		switch {
		case !ok:
			writeError(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
		case status != 0:
			writeError(w, status, "Something went wrong while processing your request.")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (f *FakeTestZeus) handleList(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	q := r.URL.Query()

	page := atoiDefault(q.Get("page"), 1)
	perPage := atoiDefault(q.Get("perPage"), 30)

	match, err := parseFilter(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter: "+err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery[collection] = q

	var matched []map[string]any
	for _, rec := range f.records[collection] {
		if match(rec) {
			matched = append(matched, copyRecord(rec))
		}
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	items := matched[start:end]
	if items == nil {
		items = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page":       page,
		"perPage":    perPage,
		"totalItems": len(matched),
		"totalPages": (len(matched) + perPage - 1) / perPage,
		"items":      items,
	})
}

func (f *FakeTestZeus) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.find(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if rec == nil {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (f *FakeTestZeus) handleCreate(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if name, _ := fields["name"].(string); name == "" && chi.URLParam(r, "collection") != "test_runs" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    400,
			"message": "Failed to create record.",
			"data": map[string]any{
				"name": map[string]string{"code": "validation_required", "message": "Missing required value."},
			},
		})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	collection := chi.URLParam(r, "collection")
	id := f.insert(collection, fields)
	writeJSON(w, http.StatusOK, f.find(collection, id))
}

func (f *FakeTestZeus) handleUpdate(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.find(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if rec == nil {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.")
		return
	}

	for k, v := range fields {
		switch {
		case strings.HasSuffix(k, "+"):
			field := strings.TrimSuffix(k, "+")
			rec[field] = append(toStrings(rec[field]), toStrings(v)...)
		case strings.HasSuffix(k, "-"):
			field := strings.TrimSuffix(k, "-")
			remove := map[string]bool{}
			for _, s := range toStrings(v) {
				remove[s] = true
			}
			kept := []string{}
			for _, s := range toStrings(rec[field]) {
				if !remove[s] {
					kept = append(kept, s)
				}
			}
			rec[field] = kept
		default:
			rec[k] = v
		}
	}
	rec["updated"] = timestamp()

	writeJSON(w, http.StatusOK, rec)
}

func (f *FakeTestZeus) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()

	recs := f.records[collection]
	for i, rec := range recs {
		if rec["id"] == id {
			f.records[collection] = append(recs[:i], recs[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "The requested resource wasn't found.")
}

// insert must be called with f.mu held.
func (f *FakeTestZeus) insert(collection string, fields map[string]any) string {
	rec := copyRecord(fields)
	id, _ := rec["id"].(string)
	if id == "" {
		id = NewRecordID()
	}
	now := timestamp()
	rec["id"] = id
	rec["collectionName"] = collection
	rec["created"] = now
	rec["updated"] = now
	f.records[collection] = append(f.records[collection], rec)
	return id
}

// find must be called with f.mu held.
func (f *FakeTestZeus) find(collection, id string) map[string]any {
	for _, rec := range f.records[collection] {
		if rec["id"] == id {
			return rec
		}
	}
	return nil
}

// issue must be called with f.mu held.
func (f *FakeTestZeus) issue(u FakeUser) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.ID,
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(f.TokenTTL)),
	}).SignedString(fakeSigningKey)
	if err != nil {
		panic(err)
	}
	f.tokens[token] = u
	return token
}

// validToken must be called with f.mu held.
func (f *FakeTestZeus) validToken(token string) (FakeUser, bool) {
	token = strings.TrimPrefix(token, "Bearer ")
	u, ok := f.tokens[token]
	if !ok {
		return FakeUser{}, false
	}

	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return fakeSigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return FakeUser{}, false
	}
	return u, true
}

func readFields(r *http.Request) (map[string]any, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		fields := map[string]any{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		for k, files := range r.MultipartForm.File {
			names := make([]string, 0, len(files))
			for _, fh := range files {
				names = append(names, fh.Filename)
			}
			fields[k] = names
		}
		return fields, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	return fields, nil
}

// parseFilter understands clauses of the form `field = "value"` or
// `field = 3` joined by &&. Unquoted literals match the record value's
// printed form.
func parseFilter(filter string) (func(map[string]any) bool, error) {
	if filter == "" {
		return func(map[string]any) bool { return true }, nil
	}

	want := map[string]string{}
	for _, clause := range strings.Split(filter, "&&") {
		key, raw, ok := strings.Cut(strings.TrimSpace(clause), "=")
		if !ok {
			return nil, fmt.Errorf("unsupported clause %q", clause)
		}
		raw = strings.TrimSpace(raw)
		value := raw
		if strings.HasPrefix(raw, `"`) {
			var err error
			if value, err = strconv.Unquote(raw); err != nil {
				return nil, fmt.Errorf("unsupported value in %q", clause)
			}
		} else if raw == "" || strings.ContainsAny(raw, " '") {
			return nil, fmt.Errorf("unsupported value in %q", clause)
		}
		want[strings.TrimSpace(key)] = value
	}

	return func(rec map[string]any) bool {
		for k, v := range want {
			if fmt.Sprint(rec[k]) != v {
				return false
			}
		}
		return true
	}, nil
}

func userRecord(u FakeUser) map[string]any {
	return map[string]any{
		"id":     u.ID,
		"email":  u.Email,
		"tenant": u.Tenant,
	}
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, s := range vv {
			out = append(out, fmt.Sprint(s))
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	}
	return nil
}

func copyRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05.000Z")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"code":    status,
		"message": message,
		"data":    map[string]any{},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

