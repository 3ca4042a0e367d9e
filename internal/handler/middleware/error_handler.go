package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"go.uber.org/zap"
)

func ErrorHandlerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ErrorHandler")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, errResponse := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("Request failed", zap.String("route", c.FullPath()), zap.Int("status", status), zap.Error(err))
		} else {
			log.Debug("Request rejected", zap.String("route", c.FullPath()), zap.Int("status", status), zap.Error(err))
		}

		var rle *ierr.RateLimitError
		if errors.As(err, &rle) {
			SetRateLimitHeaders(c, rle.Limit, rle.Remaining, rle.ResetAt.Unix())
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(rle)))
		}

		c.AbortWithStatusJSON(status, errResponse)
	}
}

func classify(err error) (int, dto.APIErrorResponse) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return http.StatusBadRequest, dto.APIErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Input validation failed.",
			Details: buildValidationErrors(ve),
		}
	}

	var rle *ierr.RateLimitError
	if errors.As(err, &rle) {
		return http.StatusTooManyRequests, dto.APIErrorResponse{
			Code:    "RATE_LIMITED",
			Message: rle.Error(),
			Details: dto.RateLimitDetails{
				Operation:         rle.Operation,
				RetryAfterSeconds: retryAfterSeconds(rle),
				ResetAt:           rle.ResetAt,
			},
		}
	}

	switch {
	case errors.Is(err, ierr.ErrValidation):
		return http.StatusBadRequest, dto.APIErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()}
	case errors.Is(err, ierr.ErrUnauthorized):
		return http.StatusUnauthorized, dto.APIErrorResponse{Code: "UNAUTHENTICATED", Message: err.Error()}
	case errors.Is(err, ierr.ErrForbidden):
		return http.StatusForbidden, dto.APIErrorResponse{Code: "FORBIDDEN", Message: err.Error()}
	case errors.Is(err, ierr.ErrNotFound):
		return http.StatusNotFound, dto.APIErrorResponse{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, ierr.ErrConflict):
		return http.StatusConflict, dto.APIErrorResponse{Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, ierr.ErrUpstream):
		return http.StatusBadGateway, dto.APIErrorResponse{Code: "UPSTREAM_ERROR", Message: "A dependent service failed, please try again later."}
	case errors.Is(err, ierr.ErrUnavailable):
		return http.StatusServiceUnavailable, dto.APIErrorResponse{Code: "UNAVAILABLE", Message: "Service temporarily unavailable, please try again later."}
	default:
		return http.StatusInternalServerError, dto.APIErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred."}
	}
}

func retryAfterSeconds(rle *ierr.RateLimitError) int {
	secs := int(math.Ceil(rle.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func buildValidationErrors(ve validator.ValidationErrors) []dto.FieldError {
	details := make([]dto.FieldError, len(ve))
	for i, fe := range ve {
		details[i] = dto.FieldError{
			Field:   fe.Field(),
			Message: getValidationErrorMsg(fe),
		}
	}
	return details
}

func getValidationErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "email":
		return fmt.Sprintf("Field '%s' must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("Field '%s' must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("Field '%s' must be less than or equal to %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' failed validation on the '%s' tag", fe.Field(), fe.Tag())
	}
}
