package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/repository"
)

func TestRoleRepository_EnsureRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRoleRepository(mock)
	details := "Full administrative access"
	role := domain.Role{ID: "role-admin", Name: domain.RoleAdmin, Details: &details}

	mock.ExpectExec(`INSERT INTO promptino\.roles \(id,name,details\) VALUES \(\$1,\$2,\$3\) ON CONFLICT \(name\) DO NOTHING`).
		WithArgs("role-admin", "Admin", details).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO promptino\.roles`).
		WithArgs("role-admin", "Admin", details).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := repo.EnsureRole(context.Background(), role)
	if err != nil {
		t.Fatalf("EnsureRole returned error: %v", err)
	}
	if !created {
		t.Fatal("expected role to be created")
	}

	created, err = repo.EnsureRole(context.Background(), role)
	if err != nil {
		t.Fatalf("EnsureRole returned error: %v", err)
	}
	if created {
		t.Fatal("expected existing role to be left alone")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_AssignRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRoleRepository(mock)

	mock.ExpectQuery(`SELECT id FROM promptino\.roles WHERE name = \$1`).
		WithArgs("User").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("role-user"))
	mock.ExpectExec(`INSERT INTO promptino\.account_roles \(account_id,role_id\) VALUES \(\$1,\$2\) ON CONFLICT DO NOTHING`).
		WithArgs("acc-1", "role-user").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.AssignRole(context.Background(), "acc-1", "User"); err != nil {
		t.Fatalf("AssignRole returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_AssignUnknownRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRoleRepository(mock)

	mock.ExpectQuery(`SELECT id FROM promptino\.roles`).
		WithArgs("Ghost").
		WillReturnError(pgx.ErrNoRows)

	if err := repo.AssignRole(context.Background(), "acc-1", "Ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleRepository_RolesForAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRoleRepository(mock)

	rows := pgxmock.NewRows([]string{"name"}).AddRow("Admin").AddRow("User")
	mock.ExpectQuery(`SELECT r\.name FROM promptino\.roles r JOIN promptino\.account_roles ar ON ar\.role_id = r\.id WHERE ar\.account_id = \$1 ORDER BY r\.name ASC`).
		WithArgs("acc-1").
		WillReturnRows(rows)

	roles, err := repo.RolesForAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("RolesForAccount returned error: %v", err)
	}
	if len(roles) != 2 || roles[0] != "Admin" || roles[1] != "User" {
		t.Fatalf("unexpected roles %v", roles)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
