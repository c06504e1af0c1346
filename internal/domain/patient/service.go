package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Today is the calendar date new visits default to.
func (s *Service) Today() time.Time {
	return Day(s.now())
}

// ParseFilter normalizes raw filter inputs against today's date.
func (s *Service) ParseFilter(query, start, end string) (Filter, FilterValues) {
	return ParseFilter(query, start, end, s.now())
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Patient, error) {
	return s.repo.List(ctx, f)
}

// ListPage returns one page of matching patients and the total number of
// matches.
func (s *Service) ListPage(ctx context.Context, f Filter) ([]*Patient, int, error) {
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	patients, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

func (s *Service) Count(ctx context.Context, f Filter) (int, error) {
	return s.repo.Count(ctx, f)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates in and stores a new patient under a fresh id.
func (s *Service) Create(ctx context.Context, in Input, rules Rules) (*Patient, error) {
	fields, err := in.Normalize().Validate(s.now(), rules)
	if err != nil {
		return nil, err
	}
	p := &Patient{}
	fields.Apply(p)
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces every editable field of an existing patient.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input, rules Rules) (*Patient, error) {
	fields, err := in.Normalize().Validate(s.now(), rules)
	if err != nil {
		return nil, err
	}
	p := &Patient{ID: id}
	fields.Apply(p)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// upsert writes one import record. It reports whether a row was created.
func (s *Service) upsert(ctx context.Context, in Input) (*Patient, bool, error) {
	in = in.Normalize()
	id, err := in.ParseID()
	if err != nil {
		return nil, false, err
	}
	fields, err := in.Validate(s.now(), Rules{})
	if err != nil {
		return nil, false, err
	}

	p := &Patient{ID: id}
	fields.Apply(p)
	if id != uuid.Nil {
		err := s.repo.Update(ctx, p)
		if err == nil {
			return p, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, false, fmt.Errorf("import: %w", err)
	}
	return p, true, nil
}
