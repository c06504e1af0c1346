// Package reporting aggregates and exports the patient table for the
// dashboard and the spreadsheet report.
package reporting

import (
	"context"
	"sort"
	"time"

	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/db"
)

const (
	// TopN is the number of buckets a breakdown keeps before folding the
	// remainder into OtherLabel.
	TopN       = 8
	OtherLabel = "Lainnya"
)

// Source is the read side of the patient store.
type Source interface {
	List(ctx context.Context, f patient.Filter) ([]*patient.Patient, error)
	Count(ctx context.Context, f patient.Filter) (int, error)
}

// Bucket is one labelled count of a breakdown.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary holds the dashboard aggregates for one filter. Total counts the
// filtered patients and Overall the whole table.
type Summary struct {
	Total         int      `json:"total"`
	Overall       int      `json:"overall"`
	VisitsPerDay  []Bucket `json:"visits_per_day"`
	TopDiagnoses  []Bucket `json:"top_diagnoses"`
	TopTreatments []Bucket `json:"top_treatments"`
}

type Service struct {
	src Source
	now func() time.Time
}

func NewService(src Source) *Service {
	return &Service{src: src, now: time.Now}
}

// ParseFilter normalizes raw filter inputs against today's date.
func (s *Service) ParseFilter(query, start, end string) (patient.Filter, patient.FilterValues) {
	return patient.ParseFilter(query, start, end, s.now())
}

// Summarize aggregates every patient matching f. Limit and Offset are
// ignored.
func (s *Service) Summarize(ctx context.Context, f patient.Filter) (*Summary, error) {
	sum, _, err := s.summarize(ctx, f)
	return sum, err
}

func (s *Service) summarize(ctx context.Context, f patient.Filter) (*Summary, []*patient.Patient, error) {
	f.Limit, f.Offset = 0, 0
	patients, err := s.src.List(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	overall, err := s.src.Count(ctx, patient.Filter{})
	if err != nil {
		return nil, nil, err
	}
	sum := Aggregate(patients)
	sum.Overall = overall
	return &sum, patients, nil
}

// Aggregate computes the breakdowns of patients. Overall is left zero.
func Aggregate(patients []*patient.Patient) Summary {
	days := make(map[string]int)
	diagnoses := make(map[string]int)
	treatments := make(map[string]int)
	for _, p := range patients {
		days[db.FormatDate(p.VisitDate)]++
		if p.Diagnosis != "" {
			diagnoses[p.Diagnosis]++
		}
		if p.Treatment != "" {
			treatments[p.Treatment]++
		}
	}

	perDay := buckets(days)
	sort.Slice(perDay, func(i, j int) bool { return perDay[i].Label < perDay[j].Label })

	return Summary{
		Total:         len(patients),
		VisitsPerDay:  perDay,
		TopDiagnoses:  top(diagnoses, TopN),
		TopTreatments: top(treatments, TopN),
	}
}

func buckets(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for label, n := range counts {
		out = append(out, Bucket{Label: label, Count: n})
	}
	return out
}

// top keeps the n largest buckets, ties broken by label, and folds the rest
// into a single OtherLabel bucket.
func top(counts map[string]int, n int) []Bucket {
	all := buckets(counts)
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Label < all[j].Label
	})
	if len(all) <= n {
		return all
	}

	rest := 0
	for _, b := range all[n:] {
		rest += b.Count
	}
	return append(all[:n:n], Bucket{Label: OtherLabel, Count: rest})
}
