package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/messaging"
	"github.com/rizkirmdhn/vimeo-scraper/internal/extractor/export"
	"github.com/rizkirmdhn/vimeo-scraper/internal/extractor/service"
	"github.com/rizkirmdhn/vimeo-scraper/internal/web/websocket"
	"github.com/rizkirmdhn/vimeo-scraper/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	pageTitle      = "Vimeo Link Finder"
	publishTimeout = 5 * time.Second
)

// Extractor finds video links on a page
type Extractor interface {
	Extract(ctx context.Context, url string) service.Result
}

type Handler struct {
	cfg       *config.Config
	log       *logrus.Logger
	extractor Extractor
	message   messaging.Publisher
	wsHub     *websocket.Hub
}

// NewHandler creates the web handler. msg may be nil when no broker is configured,
// wsHub may be nil when the activity feed is disabled.
func NewHandler(cfg *config.Config, log *logrus.Logger, extractor Extractor, msg messaging.Publisher, wsHub *websocket.Hub) *Handler {
	return &Handler{
		cfg:       cfg,
		log:       log,
		extractor: extractor,
		message:   msg,
		wsHub:     wsHub,
	}
}

// RegisterRoutes registers all the routes for the web handler
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Web views
	r.GET("/", h.IndexHandler())
	r.POST("/", h.SubmitHandler())
	if h.wsHub != nil {
		r.GET("/ws", h.WebSocketHandler())
	}

	// API endpoints
	api := r.Group("/api")
	{
		api.POST("/extract", h.ExtractAPIHandler())
	}
}

// IndexHandler renders the empty form
func (h *Handler) IndexHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.renderIndex(c, "", []string{}, false)
	}
}

// SubmitHandler extracts links for the submitted url and renders them, or returns them as CSV when download is set
func (h *Handler) SubmitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindWith(&req, formBinding(c)); err != nil {
			h.log.WithFields(logrus.Fields{
				"component": "web_handler",
				"path":      c.FullPath(),
			}).WithError(err).Warn("Rejected form without url")
			c.String(http.StatusBadRequest, "Bad Request: the form field \"url\" is required")
			return
		}

		pageURL := *req.URL
		res := h.extract(c, pageURL)

		if req.WantsDownload() {
			h.sendCSV(c, pageURL, res.Links)
			return
		}

		h.renderIndex(c, pageURL, res.Links, true)
	}
}

// ExtractAPIHandler is the JSON variant of the form
func (h *Handler) ExtractAPIHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body, url is required",
			})
			return
		}

		pageURL := *req.URL
		res := h.extract(c, pageURL)

		c.JSON(http.StatusOK, gin.H{
			"url":   pageURL,
			"links": res.Links,
			"count": len(res.Links),
		})
	}
}

// WebSocketHandler returns the WebSocket connection handler
func (h *Handler) WebSocketHandler() gin.HandlerFunc {
	return websocket.WebSocketHandler(h.wsHub, h.log)
}

// formBinding reads the submitted body only, never the query string
func formBinding(c *gin.Context) binding.Binding {
	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		return binding.FormMultipart
	}
	return binding.FormPost
}

func (h *Handler) renderIndex(c *gin.Context, pageURL string, links []string, submitted bool) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":     pageTitle,
		"url":       pageURL,
		"links":     links,
		"submitted": submitted,
		"feed":      h.wsHub != nil,
	})
}

func (h *Handler) sendCSV(c *gin.Context, pageURL string, links []string) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, export.Records(pageURL, links)); err != nil {
		h.log.WithField("component", "web_handler").WithError(err).Error("Failed to build CSV export")
		c.String(http.StatusInternalServerError, "Failed to build CSV export")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// extract runs the extractor and notifies listeners of the outcome
func (h *Handler) extract(c *gin.Context, pageURL string) service.Result {
	res := h.extractor.Extract(c.Request.Context(), pageURL)

	event := models.ExtractionEvent{
		ID:        uuid.New().String(),
		PageURL:   pageURL,
		Links:     res.Links,
		Count:     len(res.Links),
		CreatedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}

	h.broadcastEvent(event)
	h.publishEvent(event)

	return res
}

// broadcastEvent sends the event to all WebSocket clients
func (h *Handler) broadcastEvent(event models.ExtractionEvent) {
	if h.wsHub == nil {
		return
	}

	wsMessage, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	h.wsHub.Broadcast(wsMessage)
}

// publishEvent publishes the event to the broker, failures are only logged
func (h *Handler) publishEvent(event models.ExtractionEvent) {
	if h.message == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := h.message.PublishJSON(ctx, h.cfg.RabbitMq.Exchange, config.RoutingLinksExtracted, event); err != nil {
		h.log.WithFields(logrus.Fields{
			"component": "web_handler",
			"id":        event.ID,
			"url":       event.PageURL,
		}).WithError(err).Error("Failed to publish extraction event")
	}
}
