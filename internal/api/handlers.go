package api

import (
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/ytget/yt-web-downloader/internal/download"
	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/platform"
)

// SSE event name used for every message on the progress stream
const (
	SSEEventName = "message"
)

// TaskRequest represents the request body for submitting a download
type TaskRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
}

// Handler wires the HTTP surface to the task core
type Handler struct {
	service *download.Service
	cleanup *download.CleanupManager
	prober  *platform.FormatProber
}

// NewHandler creates the HTTP handler set
func NewHandler(service *download.Service, cleanup *download.CleanupManager, prober *platform.FormatProber) *Handler {
	return &Handler{
		service: service,
		cleanup: cleanup,
		prober:  prober,
	}
}

// Register associates routes with their handler functions
func (h *Handler) Register(router *gin.Engine) {
	router.POST("/api/tasks", h.submitTask)
	router.GET("/api/tasks/:id", h.getTask)
	router.GET("/api/tasks/:id/events", h.streamEvents)
	router.GET("/api/tasks/:id/file", h.serveArtifact)
	router.GET("/api/formats", h.listFormats)
}

// submitTask handles download submission
func (h *Handler) submitTask(c *gin.Context) {
	var req TaskRequest

	// Bind and validate JSON request
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.URL == "" || req.FormatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "url and format_id are required",
		})
		return
	}

	task, err := h.service.Submit(req.URL, req.FormatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID,
	})
}

// getTask returns the current task state
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.service.Task(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "task not found",
		})
		return
	}
	c.JSON(http.StatusOK, task)
}

// streamEvents delivers the live progress stream over SSE. A disconnecting
// client terminates the download; reclamation stays with the cleanup
// manager so a later retrieval still sees a consistent terminal state.
func (h *Handler) streamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	id := c.Param("id")
	events, err := h.service.Subscribe(id)
	if err != nil {
		c.SSEvent(SSEEventName, model.ErrorEvent("unknown task"))
		return
	}

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(SSEEventName, event)
			return !event.IsTerminal()
		case <-clientGone:
			log.Printf("Task %s: progress subscriber disconnected, cancelling", id)
			h.service.Cancel(id)
			return false
		}
	})
}

// serveArtifact transfers the downloaded file. The task is reclaimed after
// a successful transfer and on every failure surfaced while serving, so at
// most one retrieval succeeds.
func (h *Handler) serveArtifact(c *gin.Context) {
	id := c.Param("id")

	task, err := h.service.Task(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "task not found",
		})
		return
	}

	switch task.Status {
	case model.TaskStatusRunning:
		c.JSON(http.StatusConflict, gin.H{
			"error": "task is still running",
		})
		return
	case model.TaskStatusFailed:
		h.reclaim(id)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": task.LastError,
		})
		return
	}

	if _, err := os.Stat(task.ArtifactPath); err != nil {
		h.reclaim(id)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "artifact is no longer available",
		})
		return
	}

	c.FileAttachment(task.ArtifactPath, task.ArtifactName())
	h.reclaim(id)
}

// listFormats handles format discovery for a URL
func (h *Handler) listFormats(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "url query parameter is required",
		})
		return
	}

	formats, err := h.prober.List(c.Request.Context(), url)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"formats": formats,
	})
}

// reclaim releases task resources, logging reclaim errors
func (h *Handler) reclaim(id string) {
	if err := h.cleanup.Reclaim(id); err != nil {
		log.Printf("Task %s: reclaim failed: %v", id, err)
	}
}
