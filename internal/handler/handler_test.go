package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsheets/internal/auth"
	"attendsheets/internal/contact"
	"attendsheets/internal/httpmiddleware"
	"attendsheets/internal/identity"
	"attendsheets/internal/kv"
	"attendsheets/internal/mail"
	"attendsheets/internal/qr"
	"attendsheets/internal/roster"
	"attendsheets/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

var sixDigits = regexp.MustCompile(`\b[0-9]{6}\b`)

type fixture struct {
	router *gin.Engine
	mail   *mail.Recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(context.Background(), "sqlite3", store.MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{mail: &mail.Recorder{}, now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	tokens := auth.NewIssuer("test-secret", "attendsheets").WithClock(clock)
	codes := kv.NewMemoryWithClock(clock)
	ids := roster.NewIDGen(clock)

	h := &Handler{
		Identity: identity.NewService(db, codes, f.mail, tokens, identity.Config{Now: clock}, nil),
		Teachers: roster.NewTeacherService(db, ids, clock, nil),
		Students: roster.NewStudentService(db, ids, clock, nil),
		QR:       qr.NewEngine(db, qr.Config{Now: clock, Location: time.UTC}, nil),
		Contact:  contact.NewService(db, f.mail, "support@example.com", clock, nil),
		Store:    db,
		Tokens:   tokens,
		KV:       codes,
		Database: db.Engine(),
		Now:      clock,
	}
	f.router = gin.New()
	h.Routes(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

// register signs up through the public routes and returns the access token.
func (f *fixture) register(t *testing.T, student bool, name, email string) string {
	t.Helper()
	prefix := "/auth"
	if student {
		prefix = "/auth/student"
	}
	w, _ := f.do(t, http.MethodPost, prefix+"/signup", "", gin.H{"name": name, "email": email, "password": "supersecret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sent, ok := f.mail.Last()
	require.True(t, ok)
	code := sixDigits.FindString(sent.Text)
	require.NotEmpty(t, code)

	w, body := f.do(t, http.MethodPost, prefix+"/verify-email", "", gin.H{"email": email, "code": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["access_token"].(string)
}

func TestIndexAndStats(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lernova Attendsheets API", body["message"])
	assert.Equal(t, "SQLite", body["database"])
	assert.Equal(t, "online", body["status"])

	f.register(t, false, "Ada", "ada@example.com")
	f.register(t, true, "Sam", "sam@example.com")

	w, body = f.do(t, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total_users"])
	assert.EqualValues(t, 1, body["total_students"])
	assert.EqualValues(t, 0, body["total_classes"])

	w, body = f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["db"])
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, false, "Ada", "ada@example.com")

	w, body := f.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.NotContains(t, body, "role")

	w, body = f.do(t, http.MethodPut, "/auth/profile", token, gin.H{"name": "Ada L."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada L.", body["name"])

	w, body = f.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", body["error"])

	w, body = f.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ada@example.com", "password": "supersecret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["access_token"])

	w, _ = f.do(t, http.MethodPost, "/auth/student/login", "", gin.H{"email": "ada@example.com", "password": "supersecret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "teachers cannot use the student login")

	w, body = f.do(t, http.MethodPost, "/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Logged out successfully", body["message"])
}

func TestSignupConflictAndBindingErrors(t *testing.T) {
	f := newFixture(t)
	f.register(t, false, "Ada", "ada@example.com")

	w, body := f.do(t, http.MethodPost, "/auth/signup", "", gin.H{"name": "Ada", "email": "ada@example.com", "password": "supersecret"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "User with this email already exists", body["error"])

	w, body = f.do(t, http.MethodPost, "/auth/signup", "", gin.H{"name": "Bo", "email": "not-an-email", "password": "supersecret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "Email")

	w, body = f.do(t, http.MethodPost, "/auth/signup", "", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", body["error"])
}

func TestPasswordResetRoutes(t *testing.T) {
	f := newFixture(t)
	f.register(t, true, "Sam", "sam@example.com")

	w, body := f.do(t, http.MethodPost, "/auth/request-password-reset", "", gin.H{"email": "sam@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "If the email exists, a reset code has been sent", body["message"])

	sent, _ := f.mail.Last()
	code := sixDigits.FindString(sent.Text)
	w, body = f.do(t, http.MethodPost, "/auth/verify-reset-code", "", gin.H{"email": "sam@example.com", "code": code, "new_password": "brand-new-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Password updated successfully", body["message"])

	w, _ = f.do(t, http.MethodPost, "/auth/student/login", "", gin.H{"email": "sam@example.com", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoleGates(t *testing.T) {
	f := newFixture(t)
	teacher := f.register(t, false, "Ada", "ada@example.com")
	student := f.register(t, true, "Sam", "sam@example.com")

	w, _ := f.do(t, http.MethodGet, "/classes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := f.do(t, http.MethodGet, "/classes", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Only teachers can access classes", body["error"])

	w, body = f.do(t, http.MethodPost, "/student/enroll", teacher, gin.H{"class_id": "c-1", "name": "x", "email": "ada@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Only students can enroll", body["error"])

	w, body = f.do(t, http.MethodPost, "/qr/scan?class_id=c-1&qr_code=ABCDEFGH", teacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Only students can scan QR codes", body["error"])

	w, _ = f.do(t, http.MethodGet, "/classes", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, false, "Ada", "ada@example.com")

	f.now = f.now.Add(8 * 24 * time.Hour)
	w, body := f.do(t, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token has expired", body["error"])
}

func TestClassroomLifecycle(t *testing.T) {
	f := newFixture(t)
	teacher := f.register(t, false, "Ada", "ada@example.com")
	student := f.register(t, true, "Sam", "sam@example.com")

	w, body := f.do(t, http.MethodPost, "/classes", teacher, `{"id":101,"name":"Physics","students":[],"customColumns":[]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"id": "101", "name": "Physics"}, body["class"])

	w, body = f.do(t, http.MethodPost, "/classes", teacher, `{"id":"101","name":"Physics again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Class with this ID already exists", body["error"])

	w, body = f.do(t, http.MethodGet, "/class/verify/101", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", body["teacher_name"])

	enroll := gin.H{"class_id": "101", "name": "Sam", "rollNo": "7", "email": "sam@example.com"}
	w, body = f.do(t, http.MethodPost, "/student/enroll", student, enroll)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Successfully enrolled in class!", body["message"])
	assert.Equal(t, map[string]any{"status": "enrolled"}, body["enrollment"])

	w, _ = f.do(t, http.MethodPost, "/student/enroll", student, enroll)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = f.do(t, http.MethodGet, "/classes/101", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cls := body["class"].(map[string]any)
	require.Len(t, cls["students"], 1)

	w, body = f.do(t, http.MethodGet, "/overview", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total_classes"])
	assert.EqualValues(t, 1, body["total_students"])

	w, body = f.do(t, http.MethodGet, "/student/classes", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["classes"], 1)

	w, body = f.do(t, http.MethodGet, "/student/class/101", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Physics", body["class"].(map[string]any)["class_name"])

	w, body = f.do(t, http.MethodDelete, "/student/unenroll/101", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully unenrolled from class", body["message"])

	w, body = f.do(t, http.MethodPost, "/student/enroll", student, enroll)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "re-enrolled"}, body["enrollment"])

	w, body = f.do(t, http.MethodDelete, "/classes/101", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Class deleted successfully", body["message"])

	w, _ = f.do(t, http.MethodGet, "/classes/101", teacher, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQRSessionRoutes(t *testing.T) {
	f := newFixture(t)
	teacher := f.register(t, false, "Ada", "ada@example.com")
	student := f.register(t, true, "Sam", "sam@example.com")
	other := f.register(t, true, "Kim", "kim@example.com")

	w, _ := f.do(t, http.MethodPost, "/classes", teacher, `{"id":"c-1","name":"Physics"}`)
	require.Equal(t, http.StatusOK, w.Code)
	for _, s := range []struct{ token, email string }{{student, "sam@example.com"}, {other, "kim@example.com"}} {
		w, _ = f.do(t, http.MethodPost, "/student/enroll", s.token, gin.H{"class_id": "c-1", "name": "x", "rollNo": "1", "email": s.email})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w, body := f.do(t, http.MethodGet, "/qr/session/c-1", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["active"])

	w, body = f.do(t, http.MethodPost, "/qr/start-session", teacher, gin.H{"class_id": "c-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := body["session"].(map[string]any)
	assert.EqualValues(t, 5, session["rotation_interval"])
	assert.Equal(t, "2025-03-01", session["attendance_date"])

	w, body = f.do(t, http.MethodGet, "/qr/session/c-1", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["active"])
	polled := body["session"].(map[string]any)
	assert.Equal(t, session["current_code"], polled["current_code"])
	assert.Equal(t, []any{}, polled["scanned_students"])

	w, body = f.do(t, http.MethodPost, "/qr/scan", student, gin.H{"class_id": "c-1", "qr_code": "WRONG123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired QR code", body["error"])

	code := polled["current_code"].(string)
	w, body = f.do(t, http.MethodPost, "/qr/scan?class_id=c-1&qr_code=%20"+code, student, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "codes are compared exactly")
	assert.Equal(t, "Invalid or expired QR code", body["error"])
	w, _ = f.do(t, http.MethodPost, "/qr/scan", student, gin.H{"class_id": "c-1", "qr_code": code + " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = f.do(t, http.MethodPost, "/qr/scan?class_id=c-1&qr_code="+code, student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Attendance marked as Present", body["message"])
	assert.Equal(t, "2025-03-01", body["date"])

	w, body = f.do(t, http.MethodPost, "/qr/stop-session", teacher, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "class_id required", body["error"])

	w, body = f.do(t, http.MethodPost, "/qr/stop-session", teacher, gin.H{"class_id": "c-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, body["scanned_count"])
	assert.EqualValues(t, 1, body["absent_count"])

	w, body = f.do(t, http.MethodPost, "/qr/stop-session", teacher, gin.H{"class_id": "c-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No active session found", body["error"])
}

func TestContactForm(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/contact", "", gin.H{"name": "Kim", "email": "kim@example.com", "subject": "Hi", "message": "Hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Message received successfully", body["message"])

	sent, ok := f.mail.Last()
	require.True(t, ok)
	assert.Equal(t, "support@example.com", sent.To.Address)

	w, _ = f.do(t, http.MethodPost, "/contact", "", gin.H{"name": "Kim", "email": "kim@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	f := newFixture(t)
	h := &Handler{
		Tokens:    auth.NewIssuer("test-secret", "attendsheets"),
		AuthLimit: httpmiddleware.NewSimpleTokenBucket("auth", 1, 1).GinMiddleware(),
	}
	r := gin.New()
	h.Routes(r)
	f.router = r

	// the first request passes the limiter and fails binding
	w, _ := f.do(t, http.MethodPost, "/auth/login", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(t, http.MethodPost, "/auth/login", "", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
