package cerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/csml-run/csml-engine/pkg/cerr"
)

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := cerr.New(cerr.KindInterpret, "division by zero")
	assert.True(t, errors.Is(err, cerr.Interpret))
	assert.False(t, errors.Is(err, cerr.Parse))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := cerr.Wrap(cerr.KindStorage, cause, "query failed")
	assert.True(t, errors.Is(err, cerr.Storage))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfExtractsKind(t *testing.T) {
	k, ok := cerr.KindOf(cerr.New(cerr.KindFormat, "bad memory key"))
	assert.True(t, ok)
	assert.Equal(t, cerr.KindFormat, k)

	_, ok = cerr.KindOf(errors.New("plain error"))
	assert.False(t, ok)
}
