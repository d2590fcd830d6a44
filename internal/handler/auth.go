package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendsheets/internal/model"
)

type signupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	Name string `json:"name" binding:"required"`
}

type resetRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *Handler) signup(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signupRequest
		if !h.bind(c, &req) {
			return
		}
		msg, err := h.Identity.Signup(c.Request.Context(), role, req.Name, req.Email, req.Password)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
	}
}

func (h *Handler) verifyEmail(required model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if !h.bind(c, &req) {
			return
		}
		sess, err := h.Identity.VerifyEmail(c.Request.Context(), req.Email, req.Code, required)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func (h *Handler) resendVerification(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	msg, err := h.Identity.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *Handler) login(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !h.bind(c, &req) {
			return
		}
		sess, err := h.Identity.Login(c.Request.Context(), req.Email, req.Password, roles...)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func (h *Handler) logout(c *gin.Context) {
	h.Identity.Logout(c.Request.Context(), identityOf(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.Identity.Me(c.Request.Context(), identityOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req profileRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.Identity.UpdateProfile(c.Request.Context(), identityOf(c), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) deleteAccount(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.Identity.DeleteAccount(c.Request.Context(), identityOf(c)); err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
	}
}

func (h *Handler) requestPasswordReset(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	msg, err := h.Identity.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *Handler) verifyResetCode(c *gin.Context) {
	var req resetRequest
	if !h.bind(c, &req) {
		return
	}
	msg, err := h.Identity.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}
