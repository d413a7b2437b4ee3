package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cgi-ad-studio/internal/config"
	"cgi-ad-studio/internal/gemini"
	"cgi-ad-studio/internal/history"
	"cgi-ad-studio/internal/httpclient"
	"cgi-ad-studio/internal/studio"
)

type server struct {
	ctrl           *studio.Controller
	logger         *slog.Logger
	requestTimeout time.Duration
}

type apiError struct {
	Error string `json:"error"`
}

type stateResponse struct {
	Step        string `json:"step"`
	OriginalURL string `json:"originalUrl,omitempty"`
	PreparedURL string `json:"preparedUrl,omitempty"`
	FinalURL    string `json:"finalUrl,omitempty"`
	Scene       string `json:"scene"`
	VideoPrompt string `json:"videoPrompt,omitempty"`
	HasPrepared bool   `json:"hasPrepared"`
	Busy        bool   `json:"busy"`
	LastError   string `json:"lastError,omitempty"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	gateway := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	hist := history.NewManager(history.Options{
		Store:  history.NewFileStore(cfg.HistoryPath),
		Logger: logger,
	})
	entries := hist.Load()
	logger.Info("history loaded", "entries", len(entries))

	ctrl := studio.New(studio.Options{
		Gateway: gateway,
		History: hist,
		Logger:  logger,
	})

	s := &server{
		ctrl:           ctrl,
		logger:         logger,
		requestTimeout: cfg.RequestTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/prepare", s.handlePrepare)
	mux.HandleFunc("POST /api/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/scene", s.handleScene)
	mux.HandleFunc("POST /api/scene/random", s.handleRandomScene)
	mux.HandleFunc("POST /api/design", s.handleDesign)
	mux.HandleFunc("POST /api/video-prompt", s.handleVideoPrompt)
	mux.HandleFunc("POST /api/redesign/prepared", s.handleRedesignFromPrepared)
	mux.HandleFunc("POST /api/redesign/final", s.handleRedesignFromFinal)
	mux.HandleFunc("POST /api/start-over", s.handleStartOver)
	mux.HandleFunc("GET /api/history", s.handleHistoryList)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistoryItem)
	mux.HandleFunc("DELETE /api/history", s.handleHistoryClear)

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           withLogging(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("studio started", "addr", cfg.WebAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(s.ctrl.State()))
}

func (s *server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	type ratio struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	type concept struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	out := struct {
		AspectRatios     []ratio   `json:"aspectRatios"`
		CreativeConcepts []concept `json:"creativeConcepts"`
	}{}
	for _, ar := range studio.AspectRatios() {
		out.AspectRatios = append(out.AspectRatios, ratio{Value: ar.Value, Label: ar.Label})
	}
	for _, c := range studio.CreativeConcepts() {
		out.CreativeConcepts = append(out.CreativeConcepts, concept{Title: c.Title, Description: c.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	const maxUploadBytes = 25 << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
		return
	}

	s.respond(w, s.ctrl.Upload(data))
}

func (s *server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	s.respond(w, s.ctrl.Prepare(ctx))
}

func (s *server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.ctrl.AdvanceToDesign())
}

func (s *server) handleScene(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene string `json:"scene"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body"})
		return
	}
	s.respond(w, s.ctrl.SetScene(req.Scene))
}

func (s *server) handleRandomScene(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	s.respond(w, s.ctrl.GenerateRandomScene(ctx))
}

func (s *server) handleDesign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AspectRatio string `json:"aspectRatio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	s.respond(w, s.ctrl.Design(ctx, req.AspectRatio))
}

func (s *server) handleVideoPrompt(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	s.respond(w, s.ctrl.GenerateVideoPrompt(ctx))
}

func (s *server) handleRedesignFromPrepared(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.ctrl.RedesignFromPrepared())
}

func (s *server) handleRedesignFromFinal(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.ctrl.RedesignFromFinal())
}

func (s *server) handleStartOver(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StartOver()
	s.respond(w, nil)
}

func (s *server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.History().Entries())
}

func (s *server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.ctrl.History().Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "history entry not found"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	// The confirmation gate lives with the caller; require it explicitly.
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "clearing history requires confirm=true"})
		return
	}
	s.ctrl.History().Clear()
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(s.ctrl.State()))
}

func statusFor(err error) int {
	var precondition *studio.PreconditionError
	var decode *studio.DecodeError
	var gateway *studio.GatewayError

	switch {
	case errors.Is(err, studio.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &decode), errors.As(err, &precondition):
		return http.StatusBadRequest
	case errors.As(err, &gateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toStateResponse(snap studio.Snapshot) stateResponse {
	return stateResponse{
		Step:        string(snap.Step),
		OriginalURL: snap.Original.DataURL(),
		PreparedURL: snap.Prepared.DataURL(),
		FinalURL:    snap.Final.DataURL(),
		Scene:       snap.Scene,
		VideoPrompt: snap.VideoPrompt,
		HasPrepared: snap.HasPrepared,
		Busy:        snap.Busy,
		LastError:   snap.LastError,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
