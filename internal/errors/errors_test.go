package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFound("Session not found")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrValidation))

	wrapped := fmt.Errorf("approve series: %w", err)
	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestError_WithCause(t *testing.T) {
	cause := New("connection reset")
	err := Upstream(cause, "comicvine search failed")

	assert.Equal(t, "comicvine search failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, ErrUpstream))
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeValidation, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodeUpstream, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_WithDetailsKeepsCode(t *testing.T) {
	err := Validation("bad input").WithDetails(map[string]string{"index": "out of range"})

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, map[string]string{"index": "out of range"}, err.Details)
}
