package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"paper-auditor/config"
	"paper-auditor/models"
	"paper-auditor/services"
	"paper-auditor/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// reportStore is implemented by storage.ReportStore.
type reportStore interface {
	Save(ctx context.Context, report *models.AnalysisReport, model, archiveKey string) (*models.AuditRecord, error)
	Get(ctx context.Context, runID string) (*models.AnalysisReport, error)
	Recent(ctx context.Context, limit int) ([]models.AuditRecord, error)
}

// callLogReader is implemented by storage.CallLogStore and storage.SQLiteCallLog.
type callLogReader interface {
	Calls(ctx context.Context, runID string) ([]models.APICall, error)
}

const (
	defaultRecentAudits = 20
	maxRecentAudits     = 200
)

// server carries the handlers' dependencies. store, calls and archive are
// nil when persistence is not configured.
type server struct {
	cfg      *config.Config
	pipeline *services.Pipeline
	store    reportStore
	calls    callLogReader
	archive  *storage.ReportArchive
	logger   *zap.Logger
}

func (s *server) routes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(apiKeyAuthMiddleware(s.cfg))
	api.POST("/audits", s.createAudit)
	api.GET("/audits", s.listAudits)
	api.GET("/audits/:id", s.getAudit)
	api.GET("/audits/:id/calls", s.getAuditCalls)
	api.POST("/citations/extract", s.extractCitations)
	api.POST("/text/normalize", s.normalizeText)
	api.GET("/models", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"models": config.AllowedModels(), "default": s.cfg.LLMModel})
	})
}

type referencesInput struct {
	References       string `json:"references"`
	ReferencesFormat string `json:"references_format"`
}

func (r referencesInput) parse() ([]models.Reference, error) {
	if r.References == "" {
		return nil, nil
	}
	format := r.ReferencesFormat
	if format == "" {
		format = services.FormatBibTeX
	}
	return services.ParseBibliography([]byte(r.References), format)
}

type auditRequest struct {
	Text         string   `json:"text"`
	Model        string   `json:"model"`
	PaperTitle   string   `json:"paper_title"`
	PaperAuthors []string `json:"paper_authors"`
	referencesInput
}

func (s *server) createAudit(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	refs, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid references: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	auditor, closeModel, err := s.pipeline.Auditor(ctx, req.Model)
	if err != nil {
		if errors.Is(err, config.ErrModelNotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("Failed to set up language model", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set up language model"})
		return
	}
	defer closeModel()

	s.logger.Info("Starting audit request", zap.Int("text_length", len(req.Text)), zap.Int("imported_references", len(refs)))
	report, err := auditor.Audit(ctx, services.Input{
		Text:         req.Text,
		References:   refs,
		PaperTitle:   req.PaperTitle,
		PaperAuthors: req.PaperAuthors,
	})
	if errors.Is(err, services.ErrEmptyInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text cannot be empty"})
		return
	}
	if err != nil {
		s.logger.Error("Audit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit failed"})
		return
	}

	var archiveKey string
	if s.archive != nil {
		if archiveKey, err = s.archive.Put(ctx, report); err != nil {
			s.logger.Warn("Failed to archive report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	if s.store != nil {
		if _, err := s.store.Save(ctx, report, req.Model, archiveKey); err != nil {
			s.logger.Error("Failed to store report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, report)
}

func (s *server) getAudit(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "report storage is not configured"})
		return
	}
	report, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to load report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *server) listAudits(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "report storage is not configured"})
		return
	}
	limit := defaultRecentAudits
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = min(n, maxRecentAudits)
	}
	recs, err := s.store.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list audits", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	if recs == nil {
		recs = []models.AuditRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"audits": recs})
}

func (s *server) getAuditCalls(c *gin.Context) {
	if s.calls == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "call log storage is not configured"})
		return
	}
	runID := c.Param("id")
	calls, err := s.calls.Calls(c.Request.Context(), runID)
	if err != nil {
		s.logger.Error("Failed to load call log", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	if len(calls) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no calls logged for this audit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "calls": calls})
}

func (s *server) extractCitations(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
		referencesInput
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'text' field is required."})
		return
	}
	if len(req.Text) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text cannot be empty"})
		return
	}
	refs, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid references: " + err.Error()})
		return
	}

	var ex *services.Extraction
	if refs != nil {
		ex = s.pipeline.Extractor.ExtractWithReferences(req.Text, refs)
	} else {
		ex = s.pipeline.Extractor.Extract(req.Text)
	}
	c.JSON(http.StatusOK, ex)
}

func (s *server) normalizeText(c *gin.Context) {
	var req struct {
		Text    string                     `json:"text"`
		Options *services.NormalizeOptions `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'text' field is required."})
		return
	}
	opts := services.DefaultNormalizeOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	text, stats := services.NewTextNormalizer(s.logger).Normalize(req.Text, opts)
	c.JSON(http.StatusOK, gin.H{"text": text, "stats": stats})
}
