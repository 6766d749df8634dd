package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/atymri/Promptino/internal/infra/logger"
	"github.com/atymri/Promptino/internal/usecase"
)

const internalErrorMessage = "an unexpected error occurred"

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// unexpectedErrorCases cover faults that are not the server's to report as 500.
var unexpectedErrorCases = []ErrorCase{
	{Err: context.DeadlineExceeded, Status: http.StatusGatewayTimeout, Message: "request timed out"},
	{Err: context.Canceled, Status: http.StatusRequestTimeout, Message: "request cancelled"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// respondUnexpected logs err and answers without leaking it.
func respondUnexpected(c *gin.Context, log *zap.Logger, operation string, err error) {
	_ = c.Error(err)
	appLogger.WithContext(c.Request.Context(), log).Error("request failed",
		zap.String("operation", operation),
		zap.Error(err),
	)
	RespondWithMappedError(c, err, unexpectedErrorCases, http.StatusInternalServerError, internalErrorMessage)
}

var loginStatusCodes = map[usecase.LoginStatus]int{
	usecase.LoginAuthenticated:    http.StatusOK,
	usecase.LoginInvalidRequest:   http.StatusBadRequest,
	usecase.LoginEmailUnknown:     http.StatusBadRequest,
	usecase.LoginEmailUnconfirmed: http.StatusBadRequest,
	usecase.LoginPasswordInvalid:  http.StatusBadRequest,
	usecase.LoginLockedOut:        http.StatusLocked,
}

var refreshStatusCodes = map[usecase.RefreshStatus]int{
	usecase.RefreshRotated:        http.StatusOK,
	usecase.RefreshInvalidRequest: http.StatusBadRequest,
}

var registerStatusCodes = map[usecase.RegisterStatus]int{
	usecase.RegisterCreated:       http.StatusCreated,
	usecase.RegisterInvalid:       http.StatusBadRequest,
	usecase.RegisterAccountExists: http.StatusConflict,
}

var confirmStatusCodes = map[usecase.ConfirmStatus]int{
	usecase.ConfirmConfirmed:             http.StatusOK,
	usecase.ConfirmInvalidRequest:        http.StatusBadRequest,
	usecase.ConfirmNotFound:              http.StatusNotFound,
	usecase.ConfirmInvalidOrExpiredToken: http.StatusConflict,
}

var forgotPasswordStatusCodes = map[usecase.ForgotPasswordStatus]int{
	usecase.ForgotPasswordSent:                http.StatusOK,
	usecase.ForgotPasswordInvalidRequest:      http.StatusBadRequest,
	usecase.ForgotPasswordRateLimited:         http.StatusTooManyRequests,
	usecase.ForgotPasswordNotificationFailure: http.StatusInternalServerError,
}

var resetPasswordStatusCodes = map[usecase.ResetPasswordStatus]int{
	usecase.ResetPasswordCompleted:      http.StatusOK,
	usecase.ResetPasswordInvalidRequest: http.StatusBadRequest,
}

var profileStatusCodes = map[usecase.ProfileStatus]int{
	usecase.ProfileFound:    http.StatusOK,
	usecase.ProfileNotFound: http.StatusUnauthorized,
}

// statusCode looks up status in codes. Unknown statuses are a programming error and map to 500.
func statusCode[S comparable](codes map[S]int, status S) int {
	if code, ok := codes[status]; ok {
		return code
	}
	return http.StatusInternalServerError
}
