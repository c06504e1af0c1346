package reporting

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/web"
)

const (
	msgDashboardFailed = "Gagal memuat dashboard."
	msgExportFailed    = "Gagal membuat file Excel."
)

// Chart is one bar chart of the dashboard.
type Chart struct {
	Title   string
	Max     int
	Buckets []Bucket
}

func newChart(title string, buckets []Bucket) Chart {
	c := Chart{Title: title, Buckets: buckets}
	for _, b := range buckets {
		if b.Count > c.Max {
			c.Max = b.Count
		}
	}
	return c
}

// DashboardPage is the data of the dashboard template.
type DashboardPage struct {
	Filter    patient.FilterValues
	ExportURL string
	Summary   *Summary
	Charts    []Chart
	Patients  []*patient.Patient
}

func (DashboardPage) PageTitle() string { return "Dashboard" }

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/dashboard", h.Dashboard, auth.RequireAction(auth.ActionView))
	e.GET("/export.xlsx", h.Export, auth.RequireAction(auth.ActionView))
}

func (h *Handler) Dashboard(c echo.Context) error {
	filter, values := h.svc.ParseFilter(c.QueryParam("q"), c.QueryParam("start"), c.QueryParam("end"))

	sum, patients, err := h.svc.summarize(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, msgDashboardFailed).SetInternal(err)
	}
	if !web.WantsHTML(c) {
		return c.JSON(http.StatusOK, sum)
	}

	return c.Render(http.StatusOK, web.PageDashboard, DashboardPage{
		Filter:    values,
		ExportURL: values.URL("/export.xlsx"),
		Summary:   sum,
		Charts: []Chart{
			newChart("Kunjungan per Hari", sum.VisitsPerDay),
			newChart("Diagnosis Terbanyak", sum.TopDiagnoses),
			newChart("Tindakan Terbanyak", sum.TopTreatments),
		},
		Patients: patients,
	})
}

func (h *Handler) Export(c echo.Context) error {
	filter, _ := h.svc.ParseFilter(c.QueryParam("q"), c.QueryParam("start"), c.QueryParam("end"))

	data, err := h.svc.ExportExcel(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, msgExportFailed).SetInternal(err)
	}

	if id := auth.IdentityFromContext(c.Request().Context()); id != nil {
		h.logger.Info().Str("user", id.Username).Int("bytes", len(data)).Msg("patients exported")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", ExportName))
	return c.Blob(http.StatusOK, MIMESpreadsheet, data)
}
