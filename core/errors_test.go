package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecisionError_UnwrapAndIs(t *testing.T) {
	err := NewError("assignment.CAS", KindConflict, "order-1", ErrAssignmentConflict)
	assert.True(t, errors.Is(err, ErrAssignmentConflict))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, IsConflict(err))
	assert.False(t, IsRetryable(err))
}

func TestDecisionError_Error_FormatsOpAndID(t *testing.T) {
	err := NewError("repository.getById", KindTransient, "order-42", ErrTimeout)
	assert.Contains(t, err.Error(), "order-42")
	assert.Contains(t, err.Error(), "repository.getById")
}

func TestKindPredicates(t *testing.T) {
	cases := []struct {
		kind Kind
		pred func(error) bool
	}{
		{KindTransient, IsRetryable},
		{KindConflict, IsConflict},
		{KindUnavailable, IsUnavailable},
		{KindInvalid, IsInvalid},
		{KindFatal, IsFatal},
	}
	for _, c := range cases {
		err := NewError("op", c.kind, "", errors.New("boom"))
		assert.True(t, c.pred(err), "expected predicate to match kind %s", c.kind)
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrOrderNotFound))
	assert.True(t, IsNotFound(ErrDriverNotFound))
	assert.False(t, IsNotFound(ErrTimeout))
}
