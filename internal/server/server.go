// Package server exposes the single synchronous process-invoice operation
// over HTTP, with optional static shared-secret header auth.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/partsdesk/invoice-pipeline/internal/common"
	"github.com/partsdesk/invoice-pipeline/internal/invoice"
	"github.com/partsdesk/invoice-pipeline/internal/layout"
	"github.com/partsdesk/invoice-pipeline/internal/pipeline"
	"github.com/partsdesk/invoice-pipeline/internal/project"
)

// Server holds the request-handling dependencies. The processor and its
// provider clients are constructed once per process and shared read-only.
type Server struct {
	cfg      common.ServerConfig
	embedCfg common.EmbeddingConfig
	proc     *pipeline.Processor
	logger   *zap.Logger
}

func New(cfg common.ServerConfig, embedCfg common.EmbeddingConfig, proc *pipeline.Processor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, embedCfg: embedCfg, proc: proc, logger: logger}
}

// ProcessInvoiceRequest is the request body. blob_url is required; the rest
// are optional hints echoed back in the response.
type ProcessInvoiceRequest struct {
	BlobURL    string  `json:"blob_url"`
	ShopID     *string `json:"shop_id"`
	InvoiceID  *string `json:"invoice_id"`
	PONumber   *string `json:"po_number"`
	VendorHint *string `json:"vendor_hint"`
}

type SourceInfo struct {
	BlobURL     string  `json:"blob_url"`
	InvoiceHint *string `json:"invoice_hint"`
	VendorHint  *string `json:"vendor_hint"`
	ShopID      *string `json:"shop_id"`
}

type EmbeddingInfo struct {
	Enabled    bool   `json:"enabled"`
	Count      int    `json:"count"`
	Deployment string `json:"deployment"`
	Model      string `json:"model"`
}

type ProcessInvoiceResponse struct {
	Final     *invoice.ReconciliationResult `json:"final"`
	PassA     *invoice.Record               `json:"pass_a"`
	PassB     *invoice.Record               `json:"pass_b"`
	DISummary layout.Summary                `json:"di_summary"`
	Source    SourceInfo                    `json:"source"`
	Embedding EmbeddingInfo                 `json:"embedding"`
	DBReady   project.DBShape               `json:"db_ready"`
}

// Router builds the gin engine with auth and routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", s.authMiddleware())
	api.POST("/process-invoice", s.processInvoice)
	return router
}

// authMiddleware enforces the static shared-secret header when configured.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.ExpectHeaderName == "" || s.cfg.ExpectHeaderValue == "" {
			c.Next()
			return
		}
		if c.GetHeader(s.cfg.ExpectHeaderName) != s.cfg.ExpectHeaderValue {
			s.logger.Warn("auth header mismatch", zap.String("header", s.cfg.ExpectHeaderName))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) processInvoice(c *gin.Context) {
	var req ProcessInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if req.BlobURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blob_url is required"})
		return
	}

	result, err := s.proc.Run(c.Request.Context(), req.BlobURL)
	if err != nil {
		stage, _ := common.StageOf(err)
		kind, _ := common.KindOf(err)
		s.logger.Error("processing failed",
			zap.String("blob_url", req.BlobURL),
			zap.String("stage", stage),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if kind == common.KindDocumentFetch {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to download PDF: " + err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed: " + err.Error()})
		return
	}

	invoiceHint := req.InvoiceID
	if invoiceHint == nil {
		invoiceHint = req.PONumber
	}

	c.JSON(http.StatusOK, ProcessInvoiceResponse{
		Final:     result.Final,
		PassA:     result.PassA,
		PassB:     result.PassB,
		DISummary: result.Summary,
		Source: SourceInfo{
			BlobURL:     req.BlobURL,
			InvoiceHint: invoiceHint,
			VendorHint:  req.VendorHint,
			ShopID:      req.ShopID,
		},
		Embedding: EmbeddingInfo{
			Enabled:    result.EmbeddedLines > 0,
			Count:      result.EmbeddedLines,
			Deployment: s.embedCfg.Deployment,
			Model:      s.embedCfg.Model,
		},
		DBReady: project.ToDBShape(req.BlobURL, result.Final.Data, req.ShopID),
	})
}
