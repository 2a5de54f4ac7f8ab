package service

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/searchview-backend/internal/pkg/errors"
	"github.com/lk2023060901/searchview-backend/internal/pkg/response"
	"github.com/lk2023060901/searchview-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"github.com/lk2023060901/searchview-backend/internal/views/client"
	"github.com/lk2023060901/searchview-backend/internal/views/result"
	"github.com/lk2023060901/searchview-backend/internal/views/widget"
)

// sentinel 错误到业务错误码的映射, 按顺序匹配
var errorCodes = []struct {
	err  error
	code int
}{
	{biz.ErrSearchIDRequired, apperrors.ErrInvalidParams},
	{biz.ErrSearchNotFound, apperrors.ErrSearchNotFound},
	{biz.ErrQueryNotFound, apperrors.ErrQueryNotFound},
	{biz.ErrStaleGeneration, apperrors.ErrStaleGeneration},
	{biz.ErrInvalidGeneration, apperrors.ErrInvalidGeneration},
	{result.ErrMalformedResult, apperrors.ErrMalformedResult},
	{widget.ErrWidgetIDRequired, apperrors.ErrWidgetInvalid},
	{widget.ErrQueryIDRequired, apperrors.ErrWidgetInvalid},
	{widget.ErrSearchTypesRequired, apperrors.ErrWidgetInvalid},
	{workerpool.ErrPoolFull, apperrors.ErrTooManyRequests},
	{workerpool.ErrPoolClosed, apperrors.ErrServiceUnavail},
	{client.ErrSearchIDRequired, apperrors.ErrInvalidParams},
	{client.ErrInvalidStatus, apperrors.ErrBackendUnavailable},
	{context.DeadlineExceeded, apperrors.ErrServiceUnavail},
}

// toAppError maps a use case error to an AppError. Errors no rule knows
// about get the fallback code.
func toAppError(err error, fallback int) *apperrors.AppError {
	for _, rule := range errorCodes {
		if errors.Is(err, rule.err) {
			return apperrors.Wrap(err, rule.code)
		}
	}

	var be *client.BackendError
	if errors.As(err, &be) {
		if be.Temporary() {
			return apperrors.Wrap(err, apperrors.ErrBackendUnavailable)
		}
		return apperrors.Wrap(err, apperrors.ErrBackendRejected)
	}

	return apperrors.Wrap(err, fallback)
}

func handleError(c *gin.Context, err error) {
	response.HandleError(c, toAppError(err, apperrors.ErrInternalServer))
}
