package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/patients/internal/platform/db"
)

// ErrDuplicate is returned when a patient id is already taken.
var ErrDuplicate = errors.New("patient id already exists")

type Repository interface {
	// List returns the patients matching f, newest first.
	List(ctx context.Context, f Filter) ([]*Patient, error)
	// Count ignores Limit and Offset.
	Count(ctx context.Context, f Filter) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// Create assigns a new id unless p.ID is set.
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
}

const patientColumns = `id, name, date_of_birth, visit_date, diagnosis, treatment, doctor, created_at, updated_at`

const listOrder = ` ORDER BY created_at DESC, id DESC`

// dialect holds the differences between the two SQL stores.
type dialect struct {
	placeholder func(n int) string
	dateCast    string
	lower       string
}

var (
	pgDialect = dialect{
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		dateCast:    "::date",
		lower:       "LOWER",
	}
	sqliteDialect = dialect{
		placeholder: func(int) string { return "?" },
		lower:       db.SQLiteLower,
	}
)

// whereClause renders the Query, Start and End parts of f.
func whereClause(f Filter, d dialect) (string, []interface{}) {
	var conds []string
	var args []interface{}
	bind := func(v interface{}) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	if f.Query != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Query)) + "%"
		conds = append(conds, fmt.Sprintf(
			`(%[1]s(name) LIKE %[2]s ESCAPE '\' OR %[1]s(diagnosis) LIKE %[3]s ESCAPE '\')`,
			d.lower, bind(pattern), bind(pattern)))
	}
	if f.Start != nil {
		conds = append(conds, "visit_date >= "+bind(db.FormatDate(*f.Start))+d.dateCast)
	}
	if f.End != nil {
		conds = append(conds, "visit_date <= "+bind(db.FormatDate(*f.End))+d.dateCast)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// pageClause renders LIMIT and OFFSET when f is paged.
func pageClause(f Filter, d dialect, args []interface{}) (string, []interface{}) {
	if f.Limit <= 0 {
		return "", args
	}
	args = append(args, f.Limit, f.Offset)
	return fmt.Sprintf(" LIMIT %s OFFSET %s", d.placeholder(len(args)-1), d.placeholder(len(args))), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
