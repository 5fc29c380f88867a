package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"docqa/internal/app"
	"docqa/internal/ratelimit"
	"docqa/internal/util"
	"docqa/pkg/store"
)

const maxJSONBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                *app.App
	StaticDir          string
	CORSAllowedOrigins []string
	TrustedProxies     *util.TrustedProxies
	ChatLimiter        ratelimit.Limiter
	UploadLimiter      ratelimit.Limiter
}

// Server exposes the document QA HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	staticDir      string
	corsOrigins    []string
	trustedProxies *util.TrustedProxies
	chatLimiter    ratelimit.Limiter
	uploadLimiter  ratelimit.Limiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		staticDir:      strings.TrimSpace(cfg.StaticDir),
		corsOrigins:    cfg.CORSAllowedOrigins,
		trustedProxies: cfg.TrustedProxies,
		chatLimiter:    cfg.ChatLimiter,
		uploadLimiter:  cfg.UploadLimiter,
	}
	if s.chatLimiter == nil {
		s.chatLimiter = ratelimit.Unlimited{}
	}
	if s.uploadLimiter == nil {
		s.uploadLimiter = ratelimit.Unlimited{}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	headers := util.SecurityHeaders{UIPaths: s.isUIPath}
	return util.WithRequestID(
		util.WithRequestLog("docqa",
			util.WithRecover(
				headers.Wrap(
					util.WithCORS(s.corsOrigins, s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/upload", s.handleUpload)
	s.mux.HandleFunc("/documents", s.handleDocuments)
	s.mux.HandleFunc("/documents/", s.handleDocumentByID)
	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/history/", s.handleHistory)

	// paths used by the bundled frontend
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/upload", s.handleUpload)
	s.mux.HandleFunc("/api/upload/documents", s.handleDocuments)
	s.mux.HandleFunc("/api/upload/documents/", s.handleDocumentByID)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/chat/history/", s.handleHistory)

	if s.staticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	} else {
		s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	}
}

func (s *Server) isUIPath(path string) bool {
	if s.staticDir == "" {
		return false
	}
	switch path {
	case "/health", "/upload", "/documents", "/chat":
		return false
	}
	for _, prefix := range []string{"/api/", "/documents/", "/history/"} {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Health())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.uploadLimiter, "upload") {
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	stageDir, err := os.MkdirTemp("", "docqa-upload-*")
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "UPLOAD_FAILED", err.Error())
		return
	}
	defer os.RemoveAll(stageDir)

	files, err := s.stageParts(mr, stageDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	result, err := s.app.Upload(r.Context(), files)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNoFiles):
			writeError(w, http.StatusBadRequest, "No files uploaded")
		case errors.Is(err, app.ErrTooManyFiles):
			writeError(w, http.StatusBadRequest, "Too many files")
		default:
			writeErrorCode(w, http.StatusInternalServerError, "UPLOAD_FAILED", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// stageParts copies each "files" part to dir. Reading stops one file past
// the batch limit so the app reports the overflow.
func (s *Server) stageParts(mr *multipart.Reader, dir string) ([]app.UploadFile, error) {
	maxFiles := s.app.MaxUploadFiles()
	var files []app.UploadFile
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "files" || part.FileName() == "" {
			part.Close()
			continue
		}
		if len(files) == maxFiles {
			files = append(files, app.UploadFile{Filename: part.FileName()})
			part.Close()
			return files, nil
		}
		f, err := stagePart(part, dir, s.app.MaxFileBytes())
		part.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
}

// stagePart reads at most maxBytes+1 bytes of the part. An oversize part is
// drained and returned without content so it fails on its own.
func stagePart(part *multipart.Part, dir string, maxBytes int64) (app.UploadFile, error) {
	name := part.FileName()
	tmp, err := os.CreateTemp(dir, "part-*")
	if err != nil {
		return app.UploadFile{}, err
	}
	n, err := io.Copy(tmp, io.LimitReader(part, maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return app.UploadFile{}, err
	}
	if n > maxBytes {
		if _, err := io.Copy(io.Discard, part); err != nil {
			return app.UploadFile{}, err
		}
		os.Remove(tmp.Name())
		return app.UploadFile{Filename: name, Size: n}, nil
	}
	path := tmp.Name()
	return app.UploadFile{
		Filename: name,
		Size:     n,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.app.ListDocuments())
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path
	id = strings.TrimPrefix(id, "/api/upload/documents/")
	id = strings.TrimPrefix(id, "/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.DeleteDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, DeleteResult: res})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "chat") {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.Chat(r.Context(), req.Message, req.SessionID)
	if err != nil {
		if errors.Is(err, app.ErrMessageRequired) {
			writeError(w, http.StatusBadRequest, "Message is required")
			return
		}
		writeErrorCode(w, http.StatusInternalServerError, "CHAT_GENERATION_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Success: true, ChatResult: res})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path
	id = strings.TrimPrefix(id, "/api/chat/history/")
	id = strings.TrimPrefix(id, "/history/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.app.History(id))
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, route string) bool {
	key := route + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Success bool `json:"success"`
	app.ChatResult
}

type deleteResponse struct {
	Success bool `json:"success"`
	app.DeleteResult
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorCode(w, status, errorCode(status, msg), msg)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch message {
	case "message is required":
		return "CHAT_MESSAGE_REQUIRED"
	case "document not found":
		return "DOCUMENT_NOT_FOUND"
	case "no files uploaded":
		return "UPLOAD_NO_FILES"
	case "too many files":
		return "UPLOAD_TOO_MANY_FILES"
	case "invalid form data":
		return "UPLOAD_INVALID_FORM"
	case "invalid json body":
		return "INVALID_JSON"
	case "too many requests":
		return "RATE_LIMITED"
	case "method not allowed":
		return "METHOD_NOT_ALLOWED"
	case "not found":
		return "NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= 500 {
			return "INTERNAL_ERROR"
		}
		return "REQUEST_FAILED"
	}
}
