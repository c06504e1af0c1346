package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/auth"
)

// AuditEntry records one attempted change to patient data.
type AuditEntry struct {
	Username   string
	Role       string
	Action     string // create, edit, delete, import
	PatientID  string
	Method     string
	Path       string
	IPAddress  string
	UserAgent  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries. The log line is always written;
// a recorder is optional.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every mutating request against patient data, including
// rejected ones, after the handler has run.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := auditAction(req.Method, req.URL.Path)
			if action == "" {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Action:     action,
				PatientID:  extractPatientID(req.URL.Path),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			if id := auth.IdentityFromContext(c.Request().Context()); id != nil {
				entry.Username = id.Username
				entry.Role = string(id.Role)
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.StatusCode >= 400 {
				evt = logger.Warn()
			}
			evt.
				Str("type", "patient_audit").
				Str("request_id", entry.RequestID).
				Str("user", entry.Username).
				Str("role", entry.Role).
				Str("action", entry.Action).
				Str("patient_id", entry.PatientID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("patient_change")

			return err
		}
	}
}

// auditAction maps a mutating request to its audit action, or "" when the
// request does not change patient data.
func auditAction(method, path string) string {
	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return ""
	}
	switch {
	case path == "/import":
		return "import"
	case path == "/patients/new":
		return "create"
	case strings.HasPrefix(path, "/patients/") && strings.HasSuffix(path, "/edit"):
		return "edit"
	case strings.HasPrefix(path, "/patients/") && strings.HasSuffix(path, "/delete"):
		return "delete"
	}
	return ""
}

// extractPatientID returns the id segment of /patients/<id>/... paths.
func extractPatientID(path string) string {
	rest := strings.TrimPrefix(path, "/patients/")
	if rest == path {
		return ""
	}
	seg, _, _ := strings.Cut(rest, "/")
	if _, err := uuid.Parse(seg); err != nil {
		return ""
	}
	return seg
}
