package service

import (
	"context"
	"testing"

	"ticketledger/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("registers a student", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewPersonService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `person` WHERE email = .+").
			WithArgs("ada@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "role_data", "created_at", "updated_at"}))
		mock.ExpectExec("INSERT INTO `person`").
			WillReturnResult(sqlmock.NewResult(7, 1))

		person, err := svc.Register(ctx, &RegisterRequest{
			Name:     "Ada",
			Email:    "ada@example.com",
			Role:     model.RoleStudent,
			RoleData: `{"grade_level":"10"}`,
		})
		require.NoError(t, err)
		assert.Equal(t, model.RoleStudent, person.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewPersonService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `person` WHERE email = .+").
			WithArgs("ada@example.com").
			WillReturnRows(personRow(7, model.RoleStudent))

		_, err := svc.Register(ctx, &RegisterRequest{
			Name: "Ada", Email: "ada@example.com", Role: model.RoleStudent,
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("rejects unknown role and bad variant payload", func(t *testing.T) {
		gdb, _ := newMockDB(t)
		svc := NewPersonService(gdb)

		_, err := svc.Register(ctx, &RegisterRequest{Name: "Ada", Email: "a@b.co", Role: "STAFF"})
		assert.ErrorIs(t, err, ErrInvalidRole)

		_, err = svc.Register(ctx, &RegisterRequest{
			Name: "Ada", Email: "a@b.co", Role: model.RoleTutor, RoleData: "{broken",
		})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}
