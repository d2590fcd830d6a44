package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"attendsheets/internal/apperr"
	"attendsheets/internal/model"
	"attendsheets/internal/roster"
)

type startSessionRequest struct {
	ClassID          roster.FlexString `json:"class_id"`
	RotationInterval int               `json:"rotation_interval"`
}

type classIDRequest struct {
	ClassID roster.FlexString `json:"class_id"`
}

// scanRequest is accepted as query parameters or a JSON body. The code is
// passed on untouched and must match the current one exactly.
type scanRequest struct {
	ClassID roster.FlexString `json:"class_id"`
	QRCode  string            `json:"qr_code"`
}

type sessionView struct {
	ClassID          string                `json:"class_id"`
	CurrentCode      string                `json:"current_code"`
	AttendanceDate   string                `json:"attendance_date"`
	StartedAt        time.Time             `json:"started_at"`
	RotationInterval int                   `json:"rotation_interval"`
	Status           model.QRSessionStatus `json:"status"`
}

// polledSession adds the scanned records to the teacher's polling view.
type polledSession struct {
	sessionView
	ScannedStudents []int64 `json:"scanned_students"`
}

func viewSession(s model.QRSession) sessionView {
	return sessionView{
		ClassID:          s.ClassID,
		CurrentCode:      s.CurrentCode,
		AttendanceDate:   s.AttendanceDate,
		StartedAt:        s.StartedAt,
		RotationInterval: s.RotationInterval,
		Status:           s.Status,
	}
}

func (h *Handler) startSession(c *gin.Context) {
	var req startSessionRequest
	if !h.bind(c, &req) {
		return
	}
	classID := req.ClassID.String()
	if classID == "" {
		h.respondError(c, apperr.Validation("class_id required"))
		return
	}
	s, err := h.QR.Start(c.Request.Context(), identityOf(c).Email, classID, req.RotationInterval)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": viewSession(s)})
}

func (h *Handler) getSession(c *gin.Context) {
	s, ok, err := h.QR.Get(c.Request.Context(), identityOf(c).Email, c.Param("classId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "session": polledSession{
		sessionView:     viewSession(s),
		ScannedStudents: s.ScannedRecords,
	}})
}

func (h *Handler) scan(c *gin.Context) {
	req := scanRequest{
		ClassID: roster.FlexString(strings.TrimSpace(c.Query("class_id"))),
		QRCode:  c.Query("qr_code"),
	}
	if req.ClassID == "" || req.QRCode == "" {
		var body scanRequest
		if c.Request.ContentLength != 0 {
			if !h.bind(c, &body) {
				return
			}
		}
		if req.ClassID == "" {
			req.ClassID = body.ClassID
		}
		if req.QRCode == "" {
			req.QRCode = body.QRCode
		}
	}
	if req.ClassID == "" || req.QRCode == "" {
		h.respondError(c, apperr.Validation("class_id and qr_code are required"))
		return
	}

	date, err := h.QR.Scan(c.Request.Context(), identityOf(c).Email, req.ClassID.String(), req.QRCode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attendance marked as Present", "date": date})
}

func (h *Handler) stopSession(c *gin.Context) {
	var req classIDRequest
	if !h.bind(c, &req) {
		return
	}
	if req.ClassID == "" {
		h.respondError(c, apperr.Validation("class_id required"))
		return
	}
	res, err := h.QR.Stop(c.Request.Context(), identityOf(c).Email, req.ClassID.String())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
