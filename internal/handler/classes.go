package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendsheets/internal/roster"
)

func (h *Handler) listClasses(c *gin.Context) {
	classes, err := h.Teachers.ListClasses(c.Request.Context(), identityOf(c).Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *Handler) createClass(c *gin.Context) {
	var in roster.ClassInput
	if !h.bind(c, &in) {
		return
	}
	cls, err := h.Teachers.CreateClass(c.Request.Context(), identityOf(c).Email, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "class": gin.H{"id": cls.ID, "name": cls.Name}})
}

func (h *Handler) getClass(c *gin.Context) {
	v, err := h.Teachers.GetClass(c.Request.Context(), identityOf(c).Email, c.Param("classId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": v})
}

func (h *Handler) updateClass(c *gin.Context) {
	var in roster.ClassInput
	if !h.bind(c, &in) {
		return
	}
	v, err := h.Teachers.UpdateClass(c.Request.Context(), identityOf(c).Email, c.Param("classId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "class": v})
}

func (h *Handler) deleteClass(c *gin.Context) {
	if err := h.Teachers.DeleteClass(c.Request.Context(), identityOf(c).Email, c.Param("classId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Class deleted successfully"})
}

func (h *Handler) overview(c *gin.Context) {
	o, err := h.Teachers.Overview(c.Request.Context(), identityOf(c).Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
