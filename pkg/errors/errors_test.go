package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeConfig, "unknown directive")
	assert.Equal(t, "[config] unknown directive", err.Error())

	wrapped := Wrap(stderrors.New("boom"), ErrCodeInternal, "cannot start output")
	assert.Equal(t, "[internal] cannot start output: boom", wrapped.Error())
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeValidation, "invalid port %q", "abc")
	assert.Equal(t, "[validation] invalid port \"abc\"", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("root")
	err := Wrap(cause, ErrCodeUnavailable, "post failed")

	require.True(t, stderrors.Is(err, cause))

	var app *AppError
	require.True(t, stderrors.As(err, &app))
	assert.Equal(t, ErrCodeUnavailable, app.Code)
}

func TestIsMatchesOnCode(t *testing.T) {
	err := Newf(ErrCodeConfig, "line %d", 3)
	assert.True(t, stderrors.Is(err, New(ErrCodeConfig, "")))
	assert.False(t, stderrors.Is(err, New(ErrCodeInternal, "")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeConfig, CodeOf(New(ErrCodeConfig, "x")))
	// The outermost coded error wins.
	assert.Equal(t, ErrCodeInternal, CodeOf(Wrap(New(ErrCodeConfig, "x"), ErrCodeInternal, "outer")))
	assert.Equal(t, ErrCodeUnknown, CodeOf(stderrors.New("plain")))
	assert.Equal(t, ErrCodeUnknown, CodeOf(nil))
}

func TestCodeNames(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrCodeUnknown:     "unknown",
		ErrCodeConfig:      "config",
		ErrCodeValidation:  "validation",
		ErrCodeInternal:    "internal",
		ErrCodeUnavailable: "unavailable",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
}
