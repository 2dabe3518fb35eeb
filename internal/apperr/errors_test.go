package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, NotFound, KindOf(New(NotFound, ReasonDebtNotFound, "debt %s", "d1")))

	wrapped := fmt.Errorf("settle: %w", New(FailedPrecondition, ReasonDebtAlreadyClosed, "closed"))
	assert.Equal(t, FailedPrecondition, KindOf(wrapped))
}

func TestIsMatchesKindAndReason(t *testing.T) {
	err := New(FailedPrecondition, ReasonDebtAlreadyClosed, "debt d1 already closed")

	assert.ErrorIs(t, err, ErrAlreadyClosed)
	assert.ErrorIs(t, err, &Error{Kind: FailedPrecondition})
	assert.NotErrorIs(t, err, ErrMalformed)
	assert.NotErrorIs(t, err, ErrDebtNotFound)
}

func TestWithLogID(t *testing.T) {
	assert.NoError(t, WithLogID(nil, "log-1"))

	foreign := WithLogID(errors.New("disk full"), "log-1")
	e, ok := As(foreign)
	assert.True(t, ok)
	assert.Equal(t, Internal, e.Kind)
	assert.Equal(t, "log-1", e.LogID)

	own := New(NotFound, ReasonDebtNotFound, "missing")
	own.LogID = "first"
	e, _ = As(WithLogID(own, "second"))
	assert.Equal(t, "first", e.LogID)
}

func TestErrorString(t *testing.T) {
	err := Wrap(Internal, errors.New("conn reset"), "commit settlement")
	assert.Equal(t, "internal: commit settlement: conn reset", err.Error())

	err = New(PermissionDenied, ReasonNotMember, "user u9 is not a member")
	assert.Equal(t, "permission-denied [NOT_A_MEMBER]: user u9 is not a member", err.Error())
}
