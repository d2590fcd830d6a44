// Package handler exposes the services over HTTP with gin.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"attendsheets/internal/apperr"
	"attendsheets/internal/auth"
	"attendsheets/internal/contact"
	"attendsheets/internal/identity"
	"attendsheets/internal/model"
	"attendsheets/internal/qr"
	"attendsheets/internal/roster"
	"attendsheets/internal/store"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Handler holds the services behind the routes.
type Handler struct {
	Identity *identity.Service
	Teachers *roster.TeacherService
	Students *roster.StudentService
	QR       *qr.Engine
	Contact  *contact.Service
	Store    store.Store
	Tokens   *auth.Issuer

	// KV is checked by /healthz when set.
	KV HealthChecker
	// Database is shown on the index route.
	Database string
	Version  string
	Logger   *slog.Logger
	Now      func() time.Time

	// AuthLimit guards the unauthenticated auth routes, PublicLimit the
	// contact form. Nil means no limit.
	AuthLimit   gin.HandlerFunc
	PublicLimit gin.HandlerFunc
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

func limit(mw gin.HandlerFunc) gin.HandlerFunc {
	if mw == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return mw
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	authn := auth.Authenticate(h.Tokens)
	teacher := func(msg string) gin.HandlerFunc { return auth.RequireRole(model.RoleTeacher, msg) }
	student := func(msg string) gin.HandlerFunc { return auth.RequireRole(model.RoleStudent, msg) }
	authLimit := limit(h.AuthLimit)

	r.GET("/", h.index)
	r.GET("/stats", h.stats)
	r.GET("/healthz", h.health)

	a := r.Group("/auth")
	a.POST("/signup", authLimit, h.signup(model.RoleTeacher))
	a.POST("/student/signup", authLimit, h.signup(model.RoleStudent))
	a.POST("/verify-email", authLimit, h.verifyEmail(""))
	a.POST("/student/verify-email", authLimit, h.verifyEmail(model.RoleStudent))
	a.POST("/resend-verification", authLimit, h.resendVerification)
	a.POST("/login", authLimit, h.login(model.RoleTeacher, model.RoleStudent))
	a.POST("/student/login", authLimit, h.login(model.RoleStudent))
	a.POST("/request-password-reset", authLimit, h.requestPasswordReset)
	a.POST("/verify-reset-code", authLimit, h.verifyResetCode)
	a.POST("/logout", authn, h.logout)
	a.GET("/me", authn, h.me)
	a.PUT("/profile", authn, h.updateProfile)
	a.DELETE("/delete-account", authn, h.deleteAccount("Account deleted successfully"))
	a.DELETE("/student/delete-account", authn, student("Only students can delete student accounts"),
		h.deleteAccount("Student account deleted successfully"))

	c := r.Group("/classes", authn, teacher("Only teachers can access classes"))
	c.GET("", h.listClasses)
	c.POST("", h.createClass)
	c.GET("/:classId", h.getClass)
	c.PUT("/:classId", h.updateClass)
	c.DELETE("/:classId", h.deleteClass)
	r.GET("/overview", authn, teacher("Only teachers can access overview"), h.overview)

	s := r.Group("/student", authn)
	s.POST("/enroll", student("Only students can enroll"), h.enroll)
	s.DELETE("/unenroll/:classId", student("Only students can unenroll"), h.unenroll)
	s.GET("/classes", student("Only students can access this"), h.studentClasses)
	s.GET("/class/:classId", student("Only students can access this"), h.studentClass)
	r.GET("/class/verify/:classId", h.verifyClass)

	q := r.Group("/qr", authn)
	q.POST("/start-session", teacher("Only teachers can start QR sessions"), h.startSession)
	q.GET("/session/:classId", teacher("Only teachers can view QR sessions"), h.getSession)
	q.POST("/stop-session", teacher("Only teachers can stop QR sessions"), h.stopSession)
	q.POST("/scan", student("Only students can scan QR codes"), h.scan)

	r.POST("/contact", limit(h.PublicLimit), h.contact)
}

// respondError writes the classified error. Internal causes are logged and
// never shown.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger().ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "route", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// bind decodes the JSON body into dst and turns binding failures into
// validation errors.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.respondError(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return apperr.Validation("%s", strings.Join(msgs, "; "))
	}
	return apperr.Validation("Invalid request body")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func identityOf(c *gin.Context) auth.Identity {
	id, _ := auth.IdentityFrom(c)
	return id
}
