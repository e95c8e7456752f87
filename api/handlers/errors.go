package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, mserrors.ErrUnknownAccount),
		errors.Is(err, mserrors.ErrAccountNotFound),
		errors.Is(err, mserrors.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, mserrors.ErrInvalidFlags),
		errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, mserrors.ErrManagerNotRunning):
		return http.StatusConflict
	case errors.Is(err, mserrors.ErrStorageNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "traceId": tracing.GetTraceId(span)})
}
