package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/platform/middleware"
)

var ErrNotFound = errors.New("patient not found")

const (
	MaxNameLength     = 120
	MaxTextLength     = 500
	MaxDoctorLength   = 120
	msgRequiredName   = "Nama wajib diisi."
	msgDateFormat     = "Format tanggal tidak valid (gunakan YYYY-MM-DD)."
	msgFutureBirth    = "Tanggal lahir tidak boleh di masa depan."
	msgVisitBeforeDOB = "Tanggal kunjungan tidak boleh sebelum tanggal lahir."
	msgUnknownDoctor  = "Pilih dokter yang tersedia."
	msgInvalidID      = "ID tidak valid."
)

// Patient maps to the patients table. Empty optional text columns are
// stored as NULL.
type Patient struct {
	ID          uuid.UUID
	Name        string
	DateOfBirth *time.Time
	VisitDate   time.Time
	Diagnosis   string
	Treatment   string
	Doctor      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type patientJSON struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DateOfBirth *string   `json:"date_of_birth"`
	VisitDate   string    `json:"visit_date"`
	Diagnosis   *string   `json:"diagnosis"`
	Treatment   *string   `json:"treatment"`
	Doctor      *string   `json:"doctor"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MarshalJSON writes dates as YYYY-MM-DD and empty optional fields as null.
func (p *Patient) MarshalJSON() ([]byte, error) {
	out := patientJSON{
		ID:        p.ID,
		Name:      p.Name,
		VisitDate: db.FormatDate(p.VisitDate),
		Diagnosis: nullable(p.Diagnosis),
		Treatment: nullable(p.Treatment),
		Doctor:    nullable(p.Doctor),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.DateOfBirth != nil {
		s := db.FormatDate(*p.DateOfBirth)
		out.DateOfBirth = &s
	}
	return json.Marshal(out)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Input is a create or update request as submitted by a form, a JSON body
// or an import record. Dates are raw YYYY-MM-DD strings.
type Input struct {
	ID          string
	Name        string `form:"nama"`
	DateOfBirth string `form:"tanggal_lahir"`
	VisitDate   string `form:"tanggal_kunjungan"`
	Diagnosis   string `form:"diagnosis"`
	Treatment   string `form:"tindakan"`
	Doctor      string `form:"dokter"`
}

// inputJSON lists every accepted JSON key. English names win over their
// Indonesian aliases.
type inputJSON struct {
	ID               json.RawMessage `json:"id"`
	Name             string          `json:"name"`
	Nama             string          `json:"nama"`
	DateOfBirth      string          `json:"date_of_birth"`
	DOB              string          `json:"dob"`
	TanggalLahir     string          `json:"tanggal_lahir"`
	VisitDate        string          `json:"visit_date"`
	TanggalKunjungan string          `json:"tanggal_kunjungan"`
	Diagnosis        string          `json:"diagnosis"`
	Treatment        string          `json:"treatment"`
	Tindakan         string          `json:"tindakan"`
	Doctor           string          `json:"doctor"`
	Dokter           string          `json:"dokter"`
}

func (in *Input) UnmarshalJSON(data []byte) error {
	var raw inputJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := rawID(raw.ID)
	if err != nil {
		return err
	}
	*in = Input{
		ID:          id,
		Name:        firstNonEmpty(raw.Name, raw.Nama),
		DateOfBirth: firstNonEmpty(raw.DateOfBirth, raw.DOB, raw.TanggalLahir),
		VisitDate:   firstNonEmpty(raw.VisitDate, raw.TanggalKunjungan),
		Diagnosis:   raw.Diagnosis,
		Treatment:   firstNonEmpty(raw.Treatment, raw.Tindakan),
		Doctor:      firstNonEmpty(raw.Doctor, raw.Dokter),
	}
	return nil
}

// rawID accepts the id as a JSON string or null.
func rawID(msg json.RawMessage) (string, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", fmt.Errorf("id must be a string")
	}
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Normalize strips control characters and surrounding whitespace and puts
// text into Unicode NFC so equal names compare equal.
func (in Input) Normalize() Input {
	return Input{
		ID:          strings.TrimSpace(in.ID),
		Name:        clean(in.Name),
		DateOfBirth: strings.TrimSpace(in.DateOfBirth),
		VisitDate:   strings.TrimSpace(in.VisitDate),
		Diagnosis:   clean(in.Diagnosis),
		Treatment:   clean(in.Treatment),
		Doctor:      clean(in.Doctor),
	}
}

func clean(s string) string {
	return norm.NFC.String(middleware.SanitizeString(s))
}

// Rules adjust validation per call site.
type Rules struct {
	// DefaultDoctor fills an empty doctor.
	DefaultDoctor string
	// Doctors, when non-nil, is the closed set of accepted doctor names.
	Doctors []string
}

// Fields are the validated column values of an Input.
type Fields struct {
	Name        string
	DateOfBirth *time.Time
	VisitDate   time.Time
	Diagnosis   string
	Treatment   string
	Doctor      string
}

// Apply copies the fields onto p.
func (f Fields) Apply(p *Patient) {
	p.Name = f.Name
	p.DateOfBirth = f.DateOfBirth
	p.VisitDate = f.VisitDate
	p.Diagnosis = f.Diagnosis
	p.Treatment = f.Treatment
	p.Doctor = f.Doctor
}

// Validate checks a normalized Input. today is the current calendar date;
// it bounds the date of birth and is the default visit date. All problems
// are collected into a single *ValidationError.
func (in Input) Validate(today time.Time, rules Rules) (Fields, error) {
	errs := make(map[string]string)
	today = Day(today)

	f := Fields{
		Name:      in.Name,
		Diagnosis: in.Diagnosis,
		Treatment: in.Treatment,
		Doctor:    in.Doctor,
	}
	if f.Doctor == "" {
		f.Doctor = rules.DefaultDoctor
	}

	switch n := utf8.RuneCountInString(f.Name); {
	case n == 0:
		errs["name"] = msgRequiredName
	case n > MaxNameLength:
		errs["name"] = fmt.Sprintf("Nama maksimal %d karakter.", MaxNameLength)
	}
	if utf8.RuneCountInString(f.Diagnosis) > MaxTextLength {
		errs["diagnosis"] = fmt.Sprintf("Diagnosis maksimal %d karakter.", MaxTextLength)
	}
	if utf8.RuneCountInString(f.Treatment) > MaxTextLength {
		errs["treatment"] = fmt.Sprintf("Tindakan maksimal %d karakter.", MaxTextLength)
	}
	switch {
	case utf8.RuneCountInString(f.Doctor) > MaxDoctorLength:
		errs["doctor"] = fmt.Sprintf("Dokter maksimal %d karakter.", MaxDoctorLength)
	case rules.Doctors != nil && f.Doctor != "" && !contains(rules.Doctors, f.Doctor):
		errs["doctor"] = msgUnknownDoctor
	}

	if in.DateOfBirth != "" {
		dob, err := db.ParseDate(in.DateOfBirth)
		switch {
		case err != nil:
			errs["date_of_birth"] = msgDateFormat
		case dob.After(today):
			errs["date_of_birth"] = msgFutureBirth
		default:
			f.DateOfBirth = &dob
		}
	}

	f.VisitDate = today
	if in.VisitDate != "" {
		visit, err := db.ParseDate(in.VisitDate)
		if err != nil {
			errs["visit_date"] = msgDateFormat
		} else {
			f.VisitDate = visit
		}
	}
	if _, bad := errs["visit_date"]; !bad && f.DateOfBirth != nil && f.VisitDate.Before(*f.DateOfBirth) {
		errs["visit_date"] = msgVisitBeforeDOB
	}

	if len(errs) > 0 {
		return Fields{}, &ValidationError{Fields: errs}
	}
	return f, nil
}

// ParseID validates an optional client-supplied id.
func (in Input) ParseID() (uuid.UUID, error) {
	if in.ID == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(in.ID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, &ValidationError{Fields: map[string]string{"id": msgInvalidID}}
	}
	return id, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ValidationError maps field names to user-facing messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid patient: " + strings.Join(parts, "; ")
}

// Day truncates t to its calendar date at UTC midnight, the form dates are
// stored and compared in.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Filter narrows list, summary and export queries. Zero values do not
// filter; Limit 0 returns every row.
type Filter struct {
	Query  string
	Start  *time.Time
	End    *time.Time
	Limit  int
	Offset int
}

// FilterValues are the effective filter inputs, echoed back into forms and
// links.
type FilterValues struct {
	Query string `json:"q,omitempty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// URLValues returns the non-empty filter parameters.
func (v FilterValues) URLValues() url.Values {
	q := url.Values{}
	if v.Query != "" {
		q.Set("q", v.Query)
	}
	if v.Start != "" {
		q.Set("start", v.Start)
	}
	if v.End != "" {
		q.Set("end", v.End)
	}
	return q
}

// URL appends the filter to path.
func (v FilterValues) URL(path string) string {
	q := v.URLValues()
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// ParseFilter builds a Filter from raw query values. Empty or unparseable
// dates are ignored. A start without an end runs until today, and a
// reversed range is swapped.
func ParseFilter(query, start, end string, today time.Time) (Filter, FilterValues) {
	f := Filter{Query: clean(query)}

	if s, err := db.ParseDate(strings.TrimSpace(start)); err == nil {
		f.Start = &s
	}
	if e, err := db.ParseDate(strings.TrimSpace(end)); err == nil {
		f.End = &e
	}
	if f.Start != nil && f.End == nil {
		t := Day(today)
		f.End = &t
	}
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		f.Start, f.End = f.End, f.Start
	}

	v := FilterValues{Query: f.Query}
	if f.Start != nil {
		v.Start = db.FormatDate(*f.Start)
	}
	if f.End != nil {
		v.End = db.FormatDate(*f.End)
	}
	return f, v
}
