package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/patients/internal/platform/db"
)

type repoSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepoSQLite(sqlDB *sql.DB) Repository {
	return &repoSQLite{db: sqlDB, now: time.Now}
}

func (r *repoSQLite) List(ctx context.Context, f Filter) ([]*Patient, error) {
	where, args := whereClause(f, sqliteDialect)
	page, args := pageClause(f, sqliteDialect, args)

	rows, err := r.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients`+where+listOrder+page, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatientSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (r *repoSQLite) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f, sqliteDialect)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (r *repoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatientSQLite(r.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *repoSQLite) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := r.now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, dateArg(p.DateOfBirth), db.FormatDate(p.VisitDate),
		nullable(p.Diagnosis), nullable(p.Treatment), nullable(p.Doctor),
		db.FormatTimestamp(now), db.FormatTimestamp(now),
	)
	if err != nil {
		if db.IsSQLiteUniqueViolation(err) {
			return fmt.Errorf("create patient %s: %w", p.ID, ErrDuplicate)
		}
		return fmt.Errorf("create patient: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (r *repoSQLite) Update(ctx context.Context, p *Patient) error {
	now := r.now().UTC()

	var created string
	err := r.db.QueryRowContext(ctx, `
		UPDATE patients SET
			name = ?, date_of_birth = ?, visit_date = ?,
			diagnosis = ?, treatment = ?, doctor = ?, updated_at = ?
		WHERE id = ?
		RETURNING created_at`,
		p.Name, dateArg(p.DateOfBirth), db.FormatDate(p.VisitDate),
		nullable(p.Diagnosis), nullable(p.Treatment), nullable(p.Doctor),
		db.FormatTimestamp(now), p.ID.String(),
	).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	if p.CreatedAt, err = db.ParseTimestamp(created); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

func (r *repoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return db.FormatDate(*t)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatientSQLite(row rowScanner) (*Patient, error) {
	var p Patient
	var id, visit, created, updated string
	var dob, diagnosis, treatment, doctor sql.NullString
	err := row.Scan(&id, &p.Name, &dob, &visit, &diagnosis, &treatment, &doctor, &created, &updated)
	if err != nil {
		return nil, err
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("patient id %q: %w", id, err)
	}
	if dob.Valid && dob.String != "" {
		t, err := db.ParseDate(dob.String)
		if err != nil {
			return nil, err
		}
		p.DateOfBirth = &t
	}
	if p.VisitDate, err = db.ParseDate(visit); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = db.ParseTimestamp(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = db.ParseTimestamp(updated); err != nil {
		return nil, err
	}
	p.Diagnosis = diagnosis.String
	p.Treatment = treatment.String
	p.Doctor = doctor.String
	return &p, nil
}
