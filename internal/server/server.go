// =============================================================================
// Guest Invoice Chunker - HTTP API
// =============================================================================
//
// ROUTES:
//   GET  /healthz                     liveness
//   GET  /api/v1/formats              available format profiles
//   POST /api/v1/reconstruct          reconstruct records from page texts
//   GET  /api/v1/runs                 stored runs (record store enabled)
//   GET  /api/v1/runs/:id/records     records of a stored run
//
// POST /api/v1/reconstruct accepts either JSON {"format", "source", "pages"}
// or a text/plain body with pages separated by form feeds. The ?format=
// query parameter overrides the body.
//
// =============================================================================

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/classifier"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/converter"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/store"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/validation"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/writer"
)

// Server serves the reconstruction API.
type Server struct {
	cfg           config.ServerConfig
	formats       map[string]*config.FormatConfig
	compiled      map[string]*classifier.Format
	defaultFormat string
	store         *store.Store
	logger        *slog.Logger
}

// New compiles every format profile and returns a Server. st may be nil.
func New(cfg config.ServerConfig, formats map[string]*config.FormatConfig, defaultFormat string, st *store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if _, ok := formats[defaultFormat]; !ok {
		return nil, fmt.Errorf("%w %q", config.ErrUnknownFormat, defaultFormat)
	}

	compiled := make(map[string]*classifier.Format, len(formats))
	for name, fc := range formats {
		f, err := classifier.Compile(fc)
		if err != nil {
			return nil, err
		}
		compiled[name] = f
	}

	return &Server{
		cfg:           cfg,
		formats:       formats,
		compiled:      compiled,
		defaultFormat: defaultFormat,
		store:         st,
		logger:        logger,
	}, nil
}

// Router configures the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.logger))

	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")
	v1.GET("/formats", s.listFormats)
	v1.POST("/reconstruct", s.reconstruct)

	if s.store != nil {
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id/records", s.runRecords)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// FormatInfo describes one format profile.
type FormatInfo struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	FileMatchingPatterns []string `json:"file_matching_patterns"`
	RequiredFields       []string `json:"required_fields"`
	Default              bool     `json:"default"`
}

func (s *Server) listFormats(c *gin.Context) {
	infos := make([]FormatInfo, 0, len(s.formats))
	for _, name := range config.FormatNames(s.formats) {
		fc := s.formats[name]
		infos = append(infos, FormatInfo{
			Name:                 fc.Name,
			Description:          fc.Description,
			FileMatchingPatterns: fc.FileMatchingPatterns,
			RequiredFields:       fc.RequiredFields,
			Default:              name == s.defaultFormat,
		})
	}
	RespondOK(c, infos)
}

// ReconstructRequest is the JSON body of POST /api/v1/reconstruct.
type ReconstructRequest struct {
	Format string   `json:"format"`
	Source string   `json:"source"`
	Pages  []string `json:"pages"`
}

// ReconstructResponse is the data of a successful reconstruction.
type ReconstructResponse struct {
	writer.Document
	Valid     bool                          `json:"valid"`
	Findings  []*validation.ValidationError `json:"findings"`
	Truncated bool                          `json:"truncated,omitempty"`
}

func (s *Server) reconstruct(c *gin.Context) {
	req, err := s.bindReconstruct(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds the configured limit")
			return
		}
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	name := c.Query("format")
	if name == "" {
		name = req.Format
	}
	if name == "" {
		name = s.defaultFormat
	}
	format, ok := s.compiled[name]
	if !ok {
		s.handleError(c, fmt.Errorf("%w %q", config.ErrUnknownFormat, name))
		return
	}

	if req.Source == "" {
		req.Source = "request"
	}
	src := pagesource.Pages{Label: req.Source, Texts: req.Pages}

	res, audit, err := converter.Reconstruct(c.Request.Context(), src, format, s.logger)
	if err != nil {
		s.handleError(c, err)
		return
	}

	batch := writer.NewBatch(uuid.New().String(), req.Source, format.Name, res)

	if s.store != nil {
		run := store.Run{ID: batch.RunID, Source: req.Source, Format: format.Name, Pages: res.PagesProcessed}
		if err := s.store.SaveRun(c.Request.Context(), run, res.Records); err != nil {
			s.handleError(c, err)
			return
		}
	}

	RespondOK(c, ReconstructResponse{
		Document:  writer.BuildDocument(batch),
		Valid:     audit.IsValid,
		Findings:  audit.Errors,
		Truncated: res.Truncated,
	})
}

// bindReconstruct reads the request body as JSON or as form-feed separated
// text depending on its content type.
func (s *Server) bindReconstruct(c *gin.Context) (ReconstructRequest, error) {
	var req ReconstructRequest

	body := c.Request.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, s.cfg.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return req, err
	}

	if strings.HasPrefix(c.ContentType(), "text/plain") {
		req.Pages = pagesource.SplitPages(string(data))
		req.Source = c.Query("source")
	} else {
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("invalid JSON body: %w", err)
		}
	}

	if len(req.Pages) == 0 {
		return req, errors.New("no pages in request")
	}
	return req, nil
}

func (s *Server) listRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	RespondOK(c, runs)
}

func (s *Server) runRecords(c *gin.Context) {
	records, err := s.store.ListRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	RespondOK(c, records)
}
