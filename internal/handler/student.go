package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendsheets/internal/roster"
)

func (h *Handler) enroll(c *gin.Context) {
	var in roster.EnrollInput
	if !h.bind(c, &in) {
		return
	}
	res, err := h.Students.Enroll(c.Request.Context(), identityOf(c).Email, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    res.Message,
		"enrollment": gin.H{"status": res.Kind},
	})
}

func (h *Handler) unenroll(c *gin.Context) {
	if err := h.Students.Unenroll(c.Request.Context(), identityOf(c).Email, c.Param("classId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Successfully unenrolled from class"})
}

func (h *Handler) studentClasses(c *gin.Context) {
	classes, err := h.Students.Classes(c.Request.Context(), identityOf(c).Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *Handler) studentClass(c *gin.Context) {
	d, err := h.Students.ClassDetail(c.Request.Context(), identityOf(c).Email, c.Param("classId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": d})
}

func (h *Handler) verifyClass(c *gin.Context) {
	check, err := h.Students.VerifyClass(c.Request.Context(), c.Param("classId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}
