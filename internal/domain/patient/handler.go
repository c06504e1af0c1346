package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/platform/web"
	"github.com/ehr/patients/pkg/pagination"
)

const (
	msgNotFound      = "Data pasien tidak ditemukan."
	msgInvalidInput  = "Data pasien tidak valid."
	msgListFailed    = "Gagal mengambil data pasien."
	msgDeleteFailed  = "Gagal menghapus data pasien."
	msgImportFormat  = "Format JSON tidak valid."
	msgImportMissing = "Berkas import wajib diunggah."
)

// DoctorDirectory lists the accounts a patient can be assigned to.
type DoctorDirectory interface {
	DoctorNames(ctx context.Context) ([]string, error)
}

// ListPage is the data of the patients template.
type ListPage struct {
	Flash     string
	Filter    FilterValues
	ExportURL string
	Total     int
	Patients  []*Patient
	Page      int
	Pages     int
	Links     pagination.Links
}

func (ListPage) PageTitle() string { return "Daftar Pasien" }

// FormPage is the data of the patient_form template.
type FormPage struct {
	IsEdit  bool
	Action  string
	Form    Input
	Errors  map[string]string
	Doctors []string
}

func (p FormPage) PageTitle() string {
	if p.IsEdit {
		return "Edit Pasien"
	}
	return "Tambah Pasien"
}

type Handler struct {
	svc     *Service
	doctors DoctorDirectory
	logger  zerolog.Logger
}

func NewHandler(svc *Service, doctors DoctorDirectory, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, doctors: doctors, logger: logger}
}

// RegisterRoutes mounts the patient pages and the import endpoint.
// importLimit caps the import body.
func (h *Handler) RegisterRoutes(e *echo.Echo, importLimit echo.MiddlewareFunc) {
	e.GET("/patients", h.List, auth.RequireAction(auth.ActionView))
	e.GET("/patients/new", h.NewForm, auth.RequireAction(auth.ActionCreate))
	e.POST("/patients/new", h.Create, auth.RequireAction(auth.ActionCreate))
	e.GET("/patients/:id/edit", h.EditForm, auth.RequireAction(auth.ActionEdit))
	e.POST("/patients/:id/edit", h.Update, auth.RequireAction(auth.ActionEdit))
	e.POST("/patients/:id/delete", h.Delete, auth.RequireAction(auth.ActionDelete))
	e.POST("/import", h.Import, auth.RequireAction(auth.ActionCreate), importLimit)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	filter, values := h.svc.ParseFilter(c.QueryParam("q"), c.QueryParam("start"), c.QueryParam("end"))
	params := pagination.FromContext(c)
	filter.Limit, filter.Offset = params.Limit, params.Offset

	patients, total, err := h.svc.ListPage(ctx, filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, msgListFailed).SetInternal(err)
	}
	if patients == nil {
		patients = []*Patient{}
	}
	links := params.Links("/patients", values.URLValues(), total)

	if !web.WantsHTML(c) {
		resp := pagination.NewResponse(patients, total, params.Limit, params.Offset)
		resp.Links = &links
		return c.JSON(http.StatusOK, resp)
	}

	return c.Render(http.StatusOK, web.PagePatients, ListPage{
		Flash:     importFlash(c.QueryParams()),
		Filter:    values,
		ExportURL: values.URL("/export.xlsx"),
		Total:     total,
		Patients:  patients,
		Page:      params.Page(),
		Pages:     params.Pages(total),
		Links:     links,
	})
}

// importFlash describes the outcome of an HTML import from the redirect
// query.
func importFlash(q url.Values) string {
	imported, err := strconv.Atoi(q.Get("imported"))
	if err != nil {
		return ""
	}
	failed, _ := strconv.Atoi(q.Get("failed"))
	return fmt.Sprintf("Import selesai: %d data tersimpan, %d gagal.", imported, failed)
}

func (h *Handler) NewForm(c echo.Context) error {
	actor := auth.IdentityFromContext(c.Request().Context())
	doctors, err := h.doctorChoices(c.Request().Context(), actor, "")
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, web.PagePatientForm, FormPage{
		Action:  "/patients/new",
		Form:    Input{VisitDate: db.FormatDate(h.svc.Today()), Doctor: actor.Username},
		Doctors: doctors,
	})
}

func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	actor := auth.IdentityFromContext(ctx)

	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidInput)
	}
	doctors, err := h.doctorChoices(ctx, actor, "")
	if err != nil {
		return err
	}

	p, err := h.svc.Create(ctx, in, Rules{DefaultDoctor: actor.Username, Doctors: doctors})
	if err != nil {
		return h.formError(c, FormPage{Action: "/patients/new", Form: in.Normalize(), Doctors: doctors}, err)
	}

	h.logger.Info().Str("patient_id", p.ID.String()).Str("user", actor.Username).Msg("patient created")
	if web.WantsHTML(c) {
		return c.Redirect(http.StatusSeeOther, "/patients")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) EditForm(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.lookup(c)
	if err != nil {
		return err
	}
	doctors, err := h.doctorChoices(ctx, auth.IdentityFromContext(ctx), p.Doctor)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, web.PagePatientForm, FormPage{
		IsEdit:  true,
		Action:  editPath(p.ID),
		Form:    inputFromPatient(p),
		Doctors: doctors,
	})
}

func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	actor := auth.IdentityFromContext(ctx)
	current, err := h.lookup(c)
	if err != nil {
		return err
	}

	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidInput)
	}
	doctors, err := h.doctorChoices(ctx, actor, current.Doctor)
	if err != nil {
		return err
	}

	p, err := h.svc.Update(ctx, current.ID, in, Rules{Doctors: doctors})
	if err != nil {
		page := FormPage{IsEdit: true, Action: editPath(current.ID), Form: in.Normalize(), Doctors: doctors}
		return h.formError(c, page, err)
	}

	h.logger.Info().Str("patient_id", p.ID.String()).Str("user", actor.Username).Msg("patient updated")
	if web.WantsHTML(c) {
		return c.Redirect(http.StatusSeeOther, "/patients")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseID(c)
	if err != nil {
		return err
	}

	err = h.svc.Delete(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, msgNotFound)
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, msgDeleteFailed).SetInternal(err)
	}

	actor := auth.IdentityFromContext(ctx)
	h.logger.Info().Str("patient_id", id.String()).Str("user", actor.Username).Msg("patient deleted")
	if web.WantsHTML(c) {
		return c.Redirect(http.StatusSeeOther, "/patients")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Import(c echo.Context) error {
	body, err := importBody(c)
	if err != nil {
		return err
	}
	defer body.Close()

	items, err := DecodeImport(body)
	if err != nil {
		return importError(err)
	}

	res, err := h.svc.Import(c.Request().Context(), items)
	if err != nil {
		return importError(err)
	}

	actor := auth.IdentityFromContext(c.Request().Context())
	h.logger.Info().
		Str("user", actor.Username).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Msg("patients imported")

	if web.WantsHTML(c) {
		q := url.Values{}
		q.Set("imported", strconv.Itoa(res.Imported))
		q.Set("failed", strconv.Itoa(res.Failed))
		return c.Redirect(http.StatusSeeOther, "/patients?"+q.Encode())
	}
	return c.JSON(http.StatusOK, res)
}

// importBody returns the uploaded file of a multipart form, or the raw
// request body otherwise.
func importBody(c echo.Context) (io.ReadCloser, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		return c.Request().Body, nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, msgImportMissing)
	}
	return fh.Open()
}

func importError(err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, ErrTooManyItems):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Maksimal %d item per import.", MaxImportItems))
	case errors.Is(err, ErrMalformedImport):
		return echo.NewHTTPError(http.StatusBadRequest, msgImportFormat).SetInternal(err)
	}
	return err
}

// formError answers a failed create or update: the form is shown again
// with field messages for HTML clients, and a JSON detail otherwise.
func (h *Handler) formError(c echo.Context, page FormPage, err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		page.Errors = verr.Fields
		if web.WantsHTML(c) {
			return c.Render(http.StatusBadRequest, web.PagePatientForm, page)
		}
		return c.JSON(http.StatusBadRequest, web.Detail{Detail: msgInvalidInput, Errors: verr.Fields})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, msgNotFound)
	}

	h.logger.Error().Err(err).Msg("save patient")
	if web.WantsHTML(c) {
		page.Errors = map[string]string{"_store": msgStoreFailed}
		return c.Render(http.StatusInternalServerError, web.PagePatientForm, page)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, msgStoreFailed).SetInternal(err)
}

// lookup loads the patient named by the :id path parameter.
func (h *Handler) lookup(c echo.Context) (*Patient, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, msgNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, msgNotFound)
	}
	return id, nil
}

// doctorChoices lists the selectable doctors. The acting dokter and the
// patient's current doctor are always selectable.
func (h *Handler) doctorChoices(ctx context.Context, actor *auth.Identity, current string) ([]string, error) {
	names, err := h.doctors.DoctorNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if actor != nil && actor.IsDokter() && !contains(names, actor.Username) {
		names = append([]string{actor.Username}, names...)
	}
	if current != "" && !contains(names, current) {
		names = append(names, current)
	}
	return names, nil
}

func inputFromPatient(p *Patient) Input {
	in := Input{
		ID:        p.ID.String(),
		Name:      p.Name,
		VisitDate: db.FormatDate(p.VisitDate),
		Diagnosis: p.Diagnosis,
		Treatment: p.Treatment,
		Doctor:    p.Doctor,
	}
	if p.DateOfBirth != nil {
		in.DateOfBirth = db.FormatDate(*p.DateOfBirth)
	}
	return in
}

func editPath(id uuid.UUID) string {
	return "/patients/" + id.String() + "/edit"
}
