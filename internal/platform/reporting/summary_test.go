package reporting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/db/dbtest"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAggregate_Breakdowns(t *testing.T) {
	patients := []*patient.Patient{
		{Name: "A", VisitDate: day("2024-06-02"), Diagnosis: "Flu", Treatment: "Istirahat"},
		{Name: "B", VisitDate: day("2024-06-01"), Diagnosis: "Flu"},
		{Name: "C", VisitDate: day("2024-06-02"), Diagnosis: "Demam", Treatment: "Istirahat"},
		{Name: "D", VisitDate: day("2024-06-03")},
	}
	sum := Aggregate(patients)

	if sum.Total != 4 {
		t.Errorf("expected total 4, got %d", sum.Total)
	}
	wantDays := []Bucket{{"2024-06-01", 1}, {"2024-06-02", 2}, {"2024-06-03", 1}}
	assertBuckets(t, "visits per day", sum.VisitsPerDay, wantDays)
	assertBuckets(t, "diagnoses", sum.TopDiagnoses, []Bucket{{"Flu", 2}, {"Demam", 1}})
	assertBuckets(t, "treatments", sum.TopTreatments, []Bucket{{"Istirahat", 2}})
}

func TestAggregate_FoldsIntoLainnya(t *testing.T) {
	var patients []*patient.Patient
	// Diagnoses D0..D9 with D0 most frequent; D8 and D9 fall outside the top 8.
	for i := 0; i < 10; i++ {
		for n := 0; n < 10-i; n++ {
			patients = append(patients, &patient.Patient{VisitDate: day("2024-06-01"), Diagnosis: fmt.Sprintf("D%d", i)})
		}
	}
	sum := Aggregate(patients)

	if len(sum.TopDiagnoses) != TopN+1 {
		t.Fatalf("expected %d buckets, got %d", TopN+1, len(sum.TopDiagnoses))
	}
	if sum.TopDiagnoses[0].Label != "D0" || sum.TopDiagnoses[0].Count != 10 {
		t.Errorf("unexpected first bucket %+v", sum.TopDiagnoses[0])
	}
	last := sum.TopDiagnoses[TopN]
	if last.Label != OtherLabel || last.Count != 2+1 {
		t.Errorf("expected %s with 3, got %+v", OtherLabel, last)
	}
}

func TestAggregate_TiesOrderedByLabel(t *testing.T) {
	patients := []*patient.Patient{
		{VisitDate: day("2024-06-01"), Diagnosis: "Batuk"},
		{VisitDate: day("2024-06-01"), Diagnosis: "Asma"},
	}
	assertBuckets(t, "ties", Aggregate(patients).TopDiagnoses, []Bucket{{"Asma", 1}, {"Batuk", 1}})
}

func TestAggregate_Empty(t *testing.T) {
	sum := Aggregate(nil)
	if sum.Total != 0 || sum.VisitsPerDay == nil || sum.TopDiagnoses == nil || sum.TopTreatments == nil {
		t.Errorf("expected zero total and empty, non-nil breakdowns: %+v", sum)
	}
}

func TestSummarize_TotalMatchesList(t *testing.T) {
	repo := patient.NewRepoSQLite(dbtest.NewSQLite(t))
	ctx := context.Background()
	for i, d := range []string{"2024-05-01", "2024-05-10", "2024-05-20", "2024-06-01"} {
		p := &patient.Patient{Name: fmt.Sprintf("Pasien %d", i), VisitDate: day(d), Diagnosis: "Flu"}
		if err := repo.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	svc := NewService(repo)
	svc.now = func() time.Time { return day("2024-06-15") }

	filters := []struct{ q, start, end string }{
		{"", "", ""},
		{"flu", "", ""},
		{"", "2024-05-05", "2024-05-25"},
		{"", "2024-05-15", ""},
		{"tidak ada", "", ""},
	}
	for _, fv := range filters {
		f, _ := svc.ParseFilter(fv.q, fv.start, fv.end)
		list, err := repo.List(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		sum, err := svc.Summarize(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if sum.Total != len(list) {
			t.Errorf("filter %+v: total %d != list length %d", fv, sum.Total, len(list))
		}
		if sum.Overall != 4 {
			t.Errorf("filter %+v: expected overall 4, got %d", fv, sum.Overall)
		}
	}
}

func TestSummarize_IgnoresPaging(t *testing.T) {
	repo := patient.NewRepoSQLite(dbtest.NewSQLite(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, &patient.Patient{Name: "P", VisitDate: day("2024-06-01")}); err != nil {
			t.Fatal(err)
		}
	}
	sum, err := NewService(repo).Summarize(ctx, patient.Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 3 {
		t.Errorf("expected paging to be ignored, got total %d", sum.Total)
	}
}

func assertBuckets(t *testing.T, name string, got, want []Bucket) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %v, want %v", name, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d]: got %+v, want %+v", name, i, got[i], want[i])
		}
	}
}
