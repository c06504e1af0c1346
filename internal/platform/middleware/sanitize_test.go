package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/web"
)

// newFilterServer mounts the three filtered pages behind Sanitize with the
// application's error handler. Handlers echo the q filter back.
func newFilterServer(t *testing.T, logs *bytes.Buffer) *echo.Echo {
	t.Helper()
	logger := zerolog.New(logs)

	e := echo.New()
	r, err := web.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	e.Renderer = r
	e.HTTPErrorHandler = web.HTTPErrorHandler(logger)
	e.Use(SanitizeWithLogger(logger))

	echoFilter := func(c echo.Context) error {
		return c.String(http.StatusOK, c.QueryParam("q")+"|"+c.QueryParam("start")+"|"+c.QueryParam("end"))
	}
	for _, path := range []string{"/patients", "/dashboard", "/export.xlsx"} {
		e.GET(path, echoFilter)
	}
	return e
}

var filterPaths = []string{"/patients", "/dashboard", "/export.xlsx"}

func get(e *echo.Echo, target, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if accept != "" {
		req.Header.Set(echo.HeaderAccept, accept)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSanitize_FiltersPassThrough(t *testing.T) {
	var logs bytes.Buffer
	e := newFilterServer(t, &logs)

	filters := []url.Values{
		{"q": {"Jane Doe"}},
		{"q": {"O'Brien"}, "start": {"2024-01-01"}, "end": {"2024-01-31"}},
		{"q": {"Çakır demam 39°C"}},
		{"q": {"100% flu_berat"}},
		{"start": {"bukan-tanggal"}},
	}
	for _, path := range filterPaths {
		for _, f := range filters {
			rec := get(e, path+"?"+f.Encode(), echo.MIMETextHTML)
			if rec.Code != http.StatusOK {
				t.Errorf("GET %s?%s = %d, want 200", path, f.Encode(), rec.Code)
				continue
			}
			want := f.Get("q") + "|" + f.Get("start") + "|" + f.Get("end")
			if rec.Body.String() != want {
				t.Errorf("GET %s?%s echoed %q", path, f.Encode(), rec.Body.String())
			}
		}
	}
}

func TestSanitize_SQLLikeFilterIsLoggedNotBlocked(t *testing.T) {
	var logs bytes.Buffer
	e := newFilterServer(t, &logs)

	for _, q := range []string{"'; DROP TABLE patients;--", "x' OR 1=1", "1 UNION SELECT * FROM users"} {
		logs.Reset()
		rec := get(e, "/patients?"+url.Values{"q": {q}}.Encode(), echo.MIMEApplicationJSON)
		if rec.Code != http.StatusOK {
			t.Errorf("q=%q: status = %d, want 200", q, rec.Code)
		}
		if !strings.Contains(logs.String(), "sql-like pattern") || !strings.Contains(logs.String(), `"param":"q"`) {
			t.Errorf("q=%q: expected a warning naming the parameter, got %s", q, logs.String())
		}
	}
}

func TestSanitize_RejectsUnsafeFilters(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		reason string
	}{
		{"script in q", url.Values{"q": {"<script>alert(1)</script>"}}.Encode(), "script in query parameter q"},
		{"javascript uri in q", url.Values{"q": {"javascript:alert(1)"}}.Encode(), "script in query parameter q"},
		{"event handler in end", url.Values{"end": {"x onerror=alert(1)"}}.Encode(), "script in query parameter end"},
		{"null byte in start", "start=2024-01-01%00", "null byte in query parameter start"},
		{"script in parameter name", url.Values{"<script>": {"1"}}.Encode(), "unsafe query parameter name"},
	}

	for _, tt := range tests {
		for _, path := range filterPaths {
			t.Run(tt.name+" "+path, func(t *testing.T) {
				var logs bytes.Buffer
				e := newFilterServer(t, &logs)

				html := get(e, path+"?"+tt.query, echo.MIMETextHTML)
				assertErrorPage(t, html)

				js := get(e, path+"?"+tt.query, echo.MIMEApplicationJSON)
				assertDetail(t, js)

				if !strings.Contains(logs.String(), tt.reason) {
					t.Errorf("expected reason %q in log, got %s", tt.reason, logs.String())
				}
			})
		}
	}
}

func TestSanitize_RejectsPathAndHeaderAttacks(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header [2]string
	}{
		{"dot dot", "/patients/../etc/passwd", [2]string{}},
		{"encoded dot dot", "/patients/%2e%2e/%2e%2e/etc/passwd", [2]string{}},
		{"double encoded", "/patients/%252e%252e/etc/passwd", [2]string{}},
		{"null byte in path", "/patients/abc%00/edit", [2]string{}},
		{"newline in header", "/dashboard", [2]string{"X-Forwarded-For", "1.2.3.4\r\nSet-Cookie: x=1"}},
		{"oversized header", "/dashboard", [2]string{"X-Big", strings.Repeat("A", maxHeaderValueSize+1)}},
	}

	var logs bytes.Buffer
	e := newFilterServer(t, &logs)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
			if tt.header[0] != "" {
				req.Header[tt.header[0]] = []string{tt.header[1]}
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assertDetail(t, rec)
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello\x00world", "helloworld"},
		{"a\x01b\x1fc\x7fd", "abcd"},
		{"baris 1\nbaris 2\tkolom\r", "baris 1\nbaris 2\tkolom"},
		{"  Jane Doe  ", "Jane Doe"},
		{"\x00\x00", ""},
		{"", ""},
		{"Élodie Çakır 日本", "Élodie Çakır 日本"},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.in); got != tt.want {
			t.Errorf("SanitizeString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// assertErrorPage checks the rendered 400 page for HTML clients.
func assertErrorPage(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMETextHTML) {
		t.Errorf("content type = %q, want html", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, MsgBadRequest) || !strings.Contains(body, "400") {
		t.Errorf("error page missing message: %s", body)
	}
	if strings.Contains(body, "<script>alert") {
		t.Error("error page reflects the rejected input")
	}
}

// assertDetail checks the {"detail": ...} body for JSON clients.
func assertDetail(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body web.Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if body.Detail != MsgBadRequest {
		t.Errorf("detail = %q, want %q", body.Detail, MsgBadRequest)
	}
}
