package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/middleware"
	"github.com/ehr/patients/internal/platform/web"
)

type staticDoctors []string

func (d staticDoctors) DoctorNames(context.Context) ([]string, error) {
	return append([]string(nil), d...), nil
}

var (
	adminUser  = &auth.Identity{Username: "admin", Role: auth.RoleAdmin}
	dokterUser = &auth.Identity{Username: "dokter", Role: auth.RoleDokter}
)

// newTestServer wires the handler into an echo instance the way the
// server does. Requests are authenticated as the identity in the
// X-Test-User header.
func newTestServer(t *testing.T) (*echo.Echo, *mockRepo) {
	t.Helper()
	svc, repo := newTestService()
	h := NewHandler(svc, staticDoctors{"andi", "dokter"}, zerolog.Nop())

	e := echo.New()
	r, err := web.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	e.Renderer = r
	e.HTTPErrorHandler = web.HTTPErrorHandler(zerolog.Nop())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var id *auth.Identity
			switch c.Request().Header.Get("X-Test-User") {
			case "admin":
				id = adminUser
			case "dokter":
				id = dokterUser
			}
			if id != nil {
				req := c.Request()
				c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), id)))
			}
			return next(c)
		}
	})
	h.RegisterRoutes(e, middleware.BodyLimit("64K"))
	return e, repo
}

func do(e *echo.Echo, method, target, user, accept, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if accept != "" {
		req.Header.Set(echo.HeaderAccept, accept)
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postForm(e *echo.Echo, target, user string, form url.Values) *httptest.ResponseRecorder {
	return do(e, http.MethodPost, target, user, "text/html", echo.MIMEApplicationForm, []byte(form.Encode()))
}

func TestHandler_ListJSON(t *testing.T) {
	e, repo := newTestServer(t)
	seed(t, repo, &Patient{Name: "Ani", VisitDate: date("2024-05-01")}, &Patient{Name: "Budi", VisitDate: date("2024-05-02")})

	rec := do(e, http.MethodGet, "/patients?limit=1", "admin", echo.MIMEApplicationJSON, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data  []map[string]interface{} `json:"data"`
		Total int                      `json:"total"`
		Links struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || resp.Data[0]["name"] != "Budi" {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
	if resp.Links.Next != "/patients?limit=1&offset=1" {
		t.Errorf("unexpected next link %q", resp.Links.Next)
	}
}

func TestHandler_ListHTMLByRole(t *testing.T) {
	e, repo := newTestServer(t)
	seed(t, repo, &Patient{Name: "Jane Doe", VisitDate: date("2024-05-01")})

	admin := do(e, http.MethodGet, "/patients", "admin", "text/html", "", nil)
	if admin.Code != http.StatusOK || !strings.Contains(admin.Body.String(), "Jane Doe") {
		t.Fatalf("admin list: %d", admin.Code)
	}
	if strings.Contains(admin.Body.String(), "/edit") {
		t.Error("admin must not see edit actions")
	}

	dokter := do(e, http.MethodGet, "/patients", "dokter", "text/html", "", nil)
	if !strings.Contains(dokter.Body.String(), "/edit") || !strings.Contains(dokter.Body.String(), "/delete") {
		t.Error("dokter must see edit and delete actions")
	}
}

func TestHandler_ListRequiresLogin(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodGet, "/patients", "", "text/html", "", nil)
	if rec.Code != http.StatusFound || rec.Header().Get(echo.HeaderLocation) != "/login" {
		t.Errorf("expected redirect to /login, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/patients", "", echo.MIMEApplicationJSON, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_ListImportFlash(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodGet, "/patients?imported=3&failed=1", "dokter", "text/html", "", nil)
	if !strings.Contains(rec.Body.String(), "Import selesai: 3 data tersimpan, 1 gagal.") {
		t.Error("expected import flash message")
	}
}

func TestHandler_CreateForm(t *testing.T) {
	e, repo := newTestServer(t)

	rec := postForm(e, "/patients/new", "dokter", url.Values{
		"nama":              {"Jane Doe"},
		"tanggal_lahir":     {"1990-01-02"},
		"tanggal_kunjungan": {"2024-06-01"},
		"diagnosis":         {"Flu"},
		"tindakan":          {"Istirahat"},
		"dokter":            {"andi"},
	})
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != "/patients" {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	list, _ := repo.List(context.Background(), Filter{})
	if len(list) != 1 || list[0].Name != "Jane Doe" || list[0].Doctor != "andi" || list[0].Treatment != "Istirahat" {
		t.Errorf("unexpected stored patients %+v", list)
	}
}

func TestHandler_CreateDefaultsDoctor(t *testing.T) {
	e, repo := newTestServer(t)

	rec := do(e, http.MethodPost, "/patients/new", "dokter", echo.MIMEApplicationJSON, echo.MIMEApplicationJSON,
		[]byte(`{"nama":"Budi"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	list, _ := repo.List(context.Background(), Filter{})
	if len(list) != 1 || list[0].Doctor != "dokter" {
		t.Errorf("expected acting doctor as default, got %+v", list)
	}
}

func TestHandler_CreateInvalidHTML(t *testing.T) {
	e, repo := newTestServer(t)

	rec := postForm(e, "/patients/new", "dokter", url.Values{"nama": {""}, "tanggal_lahir": {"2999-01-01"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, msgRequiredName) || !strings.Contains(body, msgFutureBirth) {
		t.Error("expected field messages on the form")
	}
	if len(repo.patients) != 0 {
		t.Error("invalid form must not be stored")
	}
}

func TestHandler_CreateInvalidJSON(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodPost, "/patients/new", "dokter", echo.MIMEApplicationJSON, echo.MIMEApplicationJSON,
		[]byte(`{"name":"X","dokter":"dr. who"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var detail web.Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Errors["doctor"] != msgUnknownDoctor {
		t.Errorf("unexpected errors %v", detail.Errors)
	}
}

func TestHandler_AdminCannotWrite(t *testing.T) {
	e, repo := newTestServer(t)
	seed(t, repo, &Patient{Name: "Jane", VisitDate: date("2024-05-01")})
	var id string
	for k := range repo.patients {
		id = k.String()
	}

	requests := []struct{ method, path string }{
		{http.MethodGet, "/patients/new"},
		{http.MethodPost, "/patients/new"},
		{http.MethodGet, "/patients/" + id + "/edit"},
		{http.MethodPost, "/patients/" + id + "/edit"},
		{http.MethodPost, "/patients/" + id + "/delete"},
		{http.MethodPost, "/import"},
	}
	for _, r := range requests {
		rec := do(e, r.method, r.path, "admin", echo.MIMEApplicationJSON, echo.MIMEApplicationJSON, []byte(`{"name":"Hacker"}`))
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", r.method, r.path, rec.Code)
		}
	}
	if len(repo.patients) != 1 || repo.patients[mustParse(id)].Name != "Jane" {
		t.Error("admin requests must not change data")
	}
}

func TestHandler_EditFlow(t *testing.T) {
	e, repo := newTestServer(t)
	p := &Patient{Name: "Jane", VisitDate: date("2024-05-01"), Doctor: "dr. lama"}
	seed(t, repo, p)
	path := "/patients/" + p.ID.String() + "/edit"

	form := do(e, http.MethodGet, path, "dokter", "text/html", "", nil)
	if form.Code != http.StatusOK || !strings.Contains(form.Body.String(), `value="Jane"`) {
		t.Fatalf("edit form: %d", form.Code)
	}
	if !strings.Contains(form.Body.String(), `value="dr. lama" selected`) {
		t.Error("current doctor must stay selectable")
	}

	rec := postForm(e, path, "dokter", url.Values{
		"nama": {"Jane Doe"}, "tanggal_kunjungan": {"2024-05-02"}, "dokter": {"dr. lama"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	got := repo.patients[p.ID]
	if got.Name != "Jane Doe" || got.VisitDate.Format("2006-01-02") != "2024-05-02" {
		t.Errorf("update not stored: %+v", got)
	}
}

func TestHandler_EditNotFound(t *testing.T) {
	e, _ := newTestServer(t)
	for _, path := range []string{"/patients/00000000-0000-4000-8000-000000000000/edit", "/patients/bukan-id/edit"} {
		rec := do(e, http.MethodGet, path, "dokter", echo.MIMEApplicationJSON, "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestHandler_Delete(t *testing.T) {
	e, repo := newTestServer(t)
	p := &Patient{Name: "Jane", VisitDate: date("2024-05-01")}
	seed(t, repo, p)
	path := "/patients/" + p.ID.String() + "/delete"

	rec := do(e, http.MethodPost, path, "dokter", echo.MIMEApplicationJSON, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := repo.GetByID(context.Background(), p.ID); !errors.Is(err, ErrNotFound) {
		t.Error("patient must be gone")
	}

	rec = do(e, http.MethodPost, path, "dokter", echo.MIMEApplicationJSON, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestHandler_ImportJSON(t *testing.T) {
	e, repo := newTestServer(t)

	rec := do(e, http.MethodPost, "/import", "dokter", echo.MIMEApplicationJSON, echo.MIMEApplicationJSON,
		[]byte(`[{"nama":"Jane Doe","tanggal_kunjungan":"2024-06-01"},{"nama":"","tanggal_kunjungan":"2024-06-01"}]`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Failed != 1 || len(res.Errors) != 1 || res.Errors[0].Index != 1 {
		t.Errorf("unexpected result %s", rec.Body.String())
	}
	if len(repo.patients) != 1 {
		t.Errorf("expected 1 stored patient, got %d", len(repo.patients))
	}
}

func TestHandler_ImportRejections(t *testing.T) {
	e, _ := newTestServer(t)

	tooMany := "[" + strings.TrimSuffix(strings.Repeat(`{"name":"a"},`, MaxImportItems+1), ",") + "]"
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `[{"name":`, http.StatusBadRequest},
		{"too many items", tooMany, http.StatusRequestEntityTooLarge},
		{"body too large", `[{"name":"` + strings.Repeat("a", 70<<10) + `"}]`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/import", "dokter", echo.MIMEApplicationJSON, echo.MIMEApplicationJSON, []byte(tt.body))
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_ImportMultipart(t *testing.T) {
	e, repo := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "pasien.json")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(`{"name":"Jane Doe"}`))
	mw.Close()

	rec := do(e, http.MethodPost, "/import", "dokter", "text/html", mw.FormDataContentType(), buf.Bytes())
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/patients?failed=0&imported=1" {
		t.Errorf("unexpected redirect %q", loc)
	}
	if len(repo.patients) != 1 {
		t.Error("expected the uploaded record to be stored")
	}
}

func TestHandler_ImportMultipartMissingFile(t *testing.T) {
	e, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "x")
	mw.Close()

	rec := do(e, http.MethodPost, "/import", "dokter", echo.MIMEApplicationJSON, mw.FormDataContentType(), buf.Bytes())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
