// Package fakegoogle is an in-process emulator of the Google OAuth,
// userinfo, and Drive v3 endpoints drivegate talks to. It exists for tests
// only and is not imported by any binary. Every request is recorded so
// tests can assert how many calls of each kind were made.
package fakegoogle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/api/drive/v3"
)

// Profile is the account returned by the userinfo endpoint.
type Profile struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// File is a stored Drive file.
type File struct {
	ID           string
	Name         string
	MimeType     string
	Content      []byte
	Parents      []string
	Trashed      bool
	Owners       []string
	CreatedTime  time.Time
	ModifiedTime time.Time
	// Exports maps an export MIME type to the bytes returned for it.
	Exports map[string][]byte
}

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Auth   string
}

// Server emulates Google. Use New and Close it when done.
type Server struct {
	*httptest.Server

	// ExpiresIn is the lifetime, in seconds, of issued access tokens.
	ExpiresIn int
	// RotateRefreshTokens makes refresh grants return a new refresh token.
	RotateRefreshTokens bool

	mu       sync.Mutex
	profile  Profile
	files    map[string]*File
	order    []string
	calls    []Call
	failures map[string]int
	seq      int
}

// New starts a Server that reports p from the userinfo endpoint.
func New(p Profile) *Server {
	s := &Server{
		ExpiresIn: 3600,
		profile:   p,
		files:     make(map[string]*File),
		failures:  make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Post("/token", s.handleToken)
	r.Group(func(r chi.Router) {
		r.Use(requireBearer)
		r.Get("/oauth2/v2/userinfo", s.handleUserinfo)
		r.Get("/drive/v3/files", s.handleList)
		r.Get("/drive/v3/files/{id}", s.handleGet)
		r.Get("/drive/v3/files/{id}/export", s.handleExport)
		r.Delete("/drive/v3/files/{id}", s.handleDelete)
		r.Post("/upload/drive/v3/files", s.handleUpload)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// TokenURL is the OAuth token endpoint.
func (s *Server) TokenURL() string { return s.URL + "/token" }

// UserinfoEndpoint is the base path for the oauth2/v2 client.
func (s *Server) UserinfoEndpoint() string { return s.URL + "/" }

// DriveEndpoint is the base path for the drive/v3 client.
func (s *Server) DriveEndpoint() string { return s.URL + "/drive/v3/" }

// UploadURL is the multipart upload endpoint.
func (s *Server) UploadURL() string { return s.URL + "/upload/drive/v3/files" }

// SetProfile replaces the account reported by userinfo.
func (s *Server) SetProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// AddFile stores f, filling in timestamps when unset.
func (s *Server) AddFile(f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.CreatedTime.IsZero() {
		f.CreatedTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	if f.ModifiedTime.IsZero() {
		f.ModifiedTime = f.CreatedTime
	}
	if _, ok := s.files[f.ID]; !ok {
		s.order = append(s.order, f.ID)
	}
	s.files[f.ID] = &f
}

// File returns a copy of the stored file id.
func (s *Server) File(id string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return File{}, false
	}
	return *f, true
}

// Fail makes every request for method and exact path answer with status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Calls returns every recorded request.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountCalls counts recorded requests with method whose path starts with
// prefix.
func (s *Server) CountCalls(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

// CountGrants counts token requests with the given grant_type.
func (s *Server) CountGrants(grantType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Path == "/token" && c.Form.Get("grant_type") == grantType {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
		}
		if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			if err := r.ParseForm(); err == nil {
				c.Form = r.PostForm
			}
		}

		s.mu.Lock()
		s.calls = append(s.calls, c)
		status := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if status != 0 {
			if r.URL.Path == "/token" {
				writeJSON(w, status, map[string]string{"error": "invalid_grant", "error_description": "Token has been expired or revoked."})
				return
			}
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tok == "" {
			writeError(w, http.StatusUnauthorized, "Request is missing required authentication credential.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	s.seq++
	n := s.seq
	rotate := s.RotateRefreshTokens
	expiresIn := s.ExpiresIn
	s.mu.Unlock()

	resp := map[string]any{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		resp["refresh_token"] = fmt.Sprintf("refresh-%d", n)
	case "refresh_token":
		if r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		if rotate {
			resp["refresh_token"] = fmt.Sprintf("refresh-%d", n)
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserinfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	p := s.profile
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             p.ID,
		"email":          p.Email,
		"verified_email": true,
		"name":           p.Name,
		"picture":        p.Picture,
	})
}

var (
	parentClause = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	nameClause   = regexp.MustCompile(`name contains '((?:[^'\\]|\\.)*)'`)
	unescaper    = strings.NewReplacer(`\\`, `\`, `\'`, `'`)
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	var parent, name string
	if m := parentClause.FindStringSubmatch(q); m != nil {
		parent = unescaper.Replace(m[1])
	}
	if m := nameClause.FindStringSubmatch(q); m != nil {
		name = unescaper.Replace(m[1])
	}

	pageSize := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && v > 0 {
		pageSize = v
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))

	s.mu.Lock()
	var matched []*drive.File
	for _, id := range s.order {
		f := s.files[id]
		if f.Trashed {
			continue
		}
		if parent != "" && !slices.Contains(f.Parents, parent) {
			continue
		}
		if name != "" && !strings.Contains(f.Name, name) {
			continue
		}
		matched = append(matched, toResource(f))
	}
	s.mu.Unlock()

	list := &drive.FileList{Kind: "drive#fileList", Files: []*drive.File{}}
	if start < len(matched) {
		end := min(start+pageSize, len(matched))
		list.Files = matched[start:end]
		if end < len(matched) {
			list.NextPageToken = strconv.Itoa(end)
		}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	f, ok := s.File(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+chi.URLParam(r, "id")+".")
		return
	}
	if r.URL.Query().Get("alt") == "media" {
		if strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
			writeError(w, http.StatusForbidden, "Only files with binary content can be downloaded. Use Export with Docs Editors files.")
			return
		}
		w.Header().Set("Content-Type", f.MimeType)
		_, _ = w.Write(f.Content)
		return
	}
	writeJSON(w, http.StatusOK, toResource(&f))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, ok := s.File(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+chi.URLParam(r, "id")+".")
		return
	}
	mt := r.URL.Query().Get("mimeType")
	content, ok := f.Exports[mt]
	if !ok {
		writeError(w, http.StatusBadRequest, "The requested conversion is not supported.")
		return
	}
	w.Header().Set("Content-Type", mt)
	_, _ = w.Write(content)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	f, ok := s.files[id]
	if ok {
		f.Trashed = true
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id+".")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") != "multipart" {
		writeError(w, http.StatusBadRequest, "Unsupported upload type.")
		return
	}
	mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "multipart/related" {
		writeError(w, http.StatusBadRequest, "Expected multipart/related body.")
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing metadata part.")
		return
	}
	var meta struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed metadata part.")
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing media part.")
		return
	}
	raw, err := io.ReadAll(mediaPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unreadable media part.")
		return
	}
	content := raw
	if strings.EqualFold(mediaPart.Header.Get("Content-Transfer-Encoding"), "base64") {
		if content, err = base64.StdEncoding.DecodeString(string(raw)); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed base64 media.")
			return
		}
	}

	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("file-%d", s.seq)
	owner := s.profile.Email
	s.mu.Unlock()

	s.AddFile(File{
		ID:       id,
		Name:     meta.Name,
		MimeType: meta.MimeType,
		Content:  content,
		Parents:  meta.Parents,
		Owners:   []string{owner},
	})
	f, _ := s.File(id)
	writeJSON(w, http.StatusOK, toResource(&f))
}

func toResource(f *File) *drive.File {
	res := &drive.File{
		Kind:         "drive#file",
		Id:           f.ID,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Parents:      f.Parents,
		Trashed:      f.Trashed,
		CreatedTime:  f.CreatedTime.Format(time.RFC3339),
		ModifiedTime: f.ModifiedTime.Format(time.RFC3339),
		WebViewLink:  "https://drive.google.com/file/d/" + f.ID + "/view",
	}
	if !strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
		res.Size = int64(len(f.Content))
		res.ForceSendFields = []string{"Size"}
		res.WebContentLink = "https://drive.google.com/uc?id=" + f.ID + "&export=download"
	}
	for _, o := range f.Owners {
		res.Owners = append(res.Owners, &drive.User{EmailAddress: o, Kind: "drive#user"})
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"errors":  []map[string]string{{"message": msg, "domain": "global", "reason": strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", ""))}},
		},
	})
}
