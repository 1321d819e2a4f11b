package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/zeebo/assert"

	"dexdash-backend/internal/apperr"
)

func TestKindClassification(t *testing.T) {
	err := apperr.Provider(context.DeadlineExceeded, "call timed out")
	assert.True(t, apperr.IsKind(err, apperr.KindProvider))
	assert.False(t, apperr.IsKind(err, apperr.KindValidation))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := apperr.Validation("amount must be positive")
	wrapped := fmt.Errorf("quote rejected: %w", inner)
	assert.True(t, apperr.IsKind(wrapped, apperr.KindValidation))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(apperr.Configuration("unknown chain")))
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(apperr.Validation("bad amount")))
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(apperr.Upstream(nil, "aggregator down")))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(apperr.Provider(nil, "rpc broke")))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(errors.New("plain")))
}

func TestMessageIncludesUpstreamDetail(t *testing.T) {
	err := apperr.Upstream(nil, "aggregator error 51000: Parameter fromTokenAddress error")
	assert.True(t, len(err.Error()) > 0)
	assert.Equal(t, "upstream: aggregator error 51000: Parameter fromTokenAddress error", err.Error())
}
