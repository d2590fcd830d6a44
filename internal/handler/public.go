package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendsheets/internal/apperr"
	"attendsheets/internal/contact"
)

const serviceName = "Lernova Attendsheets API"

func (h *Handler) index(c *gin.Context) {
	version := h.Version
	if version == "" {
		version = "1.0.0"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  serviceName,
		"version":  version,
		"status":   "online",
		"database": h.Database,
	})
}

func (h *Handler) stats(c *gin.Context) {
	counts, err := h.Store.Counts(c.Request.Context())
	if err != nil {
		h.respondError(c, apperr.Internal(err, "Failed to load statistics"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_users":    counts.Teachers,
		"total_students": counts.Students,
		"total_classes":  counts.Classes,
		"timestamp":      h.now(),
	})
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbHealthy := h.Store.Ping(ctx) == nil
	kvHealthy := true
	if h.KV != nil {
		kvHealthy = h.KV.Healthy(ctx)
	}
	status := http.StatusOK
	if !dbHealthy || !kvHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "kv": kvHealthy})
}

func (h *Handler) contact(c *gin.Context) {
	var in contact.Input
	if !h.bind(c, &in) {
		return
	}
	if _, err := h.Contact.Submit(c.Request.Context(), in); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message received successfully"})
}
