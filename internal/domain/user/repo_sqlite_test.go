package user

import (
	"context"
	"errors"
	"testing"

	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db/dbtest"
)

func TestRepoSQLite_CreateAndGet(t *testing.T) {
	repo := NewRepoSQLite(dbtest.NewSQLite(t))
	ctx := context.Background()

	u := &User{Username: "dokter", PasswordHash: "hash", Role: auth.RoleDokter}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByUsername(ctx, "dokter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != u.ID || got.Role != auth.RoleDokter || got.PasswordHash != "hash" {
		t.Errorf("unexpected user %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestRepoSQLite_NotFound(t *testing.T) {
	repo := NewRepoSQLite(dbtest.NewSQLite(t))
	if _, err := repo.GetByUsername(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoSQLite_Duplicate(t *testing.T) {
	repo := NewRepoSQLite(dbtest.NewSQLite(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &User{Username: "admin", PasswordHash: "h", Role: auth.RoleAdmin}); err != nil {
		t.Fatal(err)
	}
	err := repo.Create(ctx, &User{Username: "admin", PasswordHash: "h", Role: auth.RoleAdmin})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestRepoSQLite_RoleConstraint(t *testing.T) {
	repo := NewRepoSQLite(dbtest.NewSQLite(t))
	err := repo.Create(context.Background(), &User{Username: "perawat", PasswordHash: "h", Role: "nurse"})
	if err == nil {
		t.Error("expected CHECK constraint to reject unknown role")
	}
}

func TestRepoSQLite_ListByRole(t *testing.T) {
	sqlDB := dbtest.NewSQLite(t)
	svc := NewService(NewRepoSQLite(sqlDB), auth.NewTokenIssuer("s", 0))
	ctx := context.Background()

	if _, err := svc.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	names, err := svc.DoctorNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "dokter" {
		t.Errorf("expected [dokter], got %v", names)
	}
}
