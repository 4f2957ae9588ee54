package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"poison wrapper", Poison("decode", errors.New("bad json")), ClassPoison},
		{"poison sentinel", fmt.Errorf("decode: %w", ErrPoisonMessage), ClassPoison},
		{"invalid wrapper", Invalid("validate", errors.New("nope")), ClassInvalid},
		{"empty sentinel", ErrEmptyRecord, ClassInvalid},
		{"unknown kind", fmt.Errorf("x: %w", ErrUnknownSensorKind), ClassInvalid},
		{"fatal", Fatal("connect", errors.New("down")), ClassFatal},
		{"unclassified", errors.New("boom"), ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestPredicatesNil(t *testing.T) {
	assert.False(t, IsPoison(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsFatal(nil))
}

func TestClassifyStore(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, ClassifyStore("save", nil))
	})

	t.Run("gorm constraint is invalid", func(t *testing.T) {
		err := ClassifyStore("save", fmt.Errorf("insert: %w", gorm.ErrCheckConstraintViolated))
		assert.True(t, IsInvalid(err))
		assert.ErrorIs(t, err, gorm.ErrCheckConstraintViolated)
	})

	t.Run("postgres integrity code is invalid", func(t *testing.T) {
		err := ClassifyStore("save", &pgconn.PgError{Code: "23514"})
		assert.True(t, IsInvalid(err))
	})

	t.Run("postgres admin shutdown is transient", func(t *testing.T) {
		err := ClassifyStore("save", &pgconn.PgError{Code: "57P01"})
		assert.True(t, IsTransient(err))
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("timeout is transient", func(t *testing.T) {
		err := ClassifyStore("save", context.DeadlineExceeded)
		assert.True(t, IsTransient(err))
	})

	t.Run("sqlite constraint message is invalid", func(t *testing.T) {
		err := ClassifyStore("save", errors.New("CHECK constraint failed: chk_air_co2"))
		assert.True(t, IsInvalid(err))
	})

	t.Run("already classified is kept", func(t *testing.T) {
		in := Poison("decode", errors.New("x"))
		assert.Same(t, in, ClassifyStore("save", in))
	})
}

func TestClassifiedErrorMessage(t *testing.T) {
	err := Transient("redis write", errors.New("i/o timeout"))
	assert.Equal(t, "redis write: i/o timeout", err.Error())
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "unknown", Class(42).String())
}
