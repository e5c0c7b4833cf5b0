package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
	"github.com/jayleecn/dongchedi-video-downloader/internal/resolver"
)

// VideoResolver is the slice of the resolver the HTTP layer needs.
type VideoResolver interface {
	Resolve(ctx context.Context, url string) (*resolver.Result, error)
}

// Server is the thin request-handling wrapper around the resolver: body
// parsing, CORS headers, response shaping. The hard work happens elsewhere.
type Server struct {
	cfg      config.ServerConfig
	budget   time.Duration
	resolver VideoResolver
	logger   *zap.Logger
}

func NewServer(cfg *config.Config, res VideoResolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg.Server,
		budget:   cfg.Timeouts.OverallBudget,
		resolver: res,
		logger:   logger,
	}
}

// resolveRequest is the inbound body: a single page URL.
type resolveRequest struct {
	URL string `json:"url"`
}

// resolveResponse mirrors the response contract of the original service.
type resolveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type foundData struct {
	VideoURLs    []string `json:"videoUrls"`
	OriginalURL  string   `json:"original_url"`
	ConvertedURL *string  `json:"convertedUrl"`
}

type notFoundData struct {
	OriginalURL string                `json:"original_url"`
	Diagnostic  *resolver.Diagnostics `json:"diagnostic,omitempty"`
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/getVideoUrl", s.handleResolve)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return withCORS(mux)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}

	var req resolveRequest
	if err := s.decodeJSONBody(w, r, &req); err != nil {
		writeError(w, err.status, err.message)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "please provide a video URL")
		return
	}

	ctx := r.Context()
	if s.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	result, err := s.resolver.Resolve(ctx, req.URL)
	if err != nil {
		if resolver.IsRejected(err) {
			writeError(w, http.StatusBadRequest, "please provide a valid dongchedi video URL")
			return
		}
		s.logger.Error("resolution failed", zap.String("url", req.URL), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, resolveResponse{
			Success: false,
			Message: "server error while processing the video",
			Error:   err.Error(),
		})
		return
	}

	if !result.Found {
		writeJSON(w, http.StatusNotFound, resolveResponse{
			Success: false,
			Message: "no video URL found; verify the link is correct and the video is accessible",
			Data: notFoundData{
				OriginalURL: result.OriginalURL,
				Diagnostic:  result.Diagnostics,
			},
		})
		return
	}

	var converted *string
	if result.Converted && result.NormalizedURL != result.OriginalURL {
		converted = &result.NormalizedURL
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Success: true,
		Message: "video URLs retrieved",
		Data: foundData{
			VideoURLs:    result.URLs,
			OriginalURL:  result.OriginalURL,
			ConvertedURL: converted,
		},
	})
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	return nil
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("listening", zap.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, resolveResponse{Success: false, Message: message})
}
