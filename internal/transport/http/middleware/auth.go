package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atymri/Promptino/internal/infra/security"
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// AccessTokenParser validates a bearer access token, expiry included.
type AccessTokenParser interface {
	ParseAccessToken(raw string) (*security.AccessTokenClaims, error)
}

// RequireAuth rejects requests without a valid bearer access token and stores the account id on the context.
func RequireAuth(parser AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="promptino"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "missing or malformed bearer token"))
			return
		}

		claims, err := parser.ParseAccessToken(token)
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, security.ErrTokenExpired) {
				msg = "access token expired"
			}
			c.Header("WWW-Authenticate", `Bearer realm="promptino", error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, msg))
			return
		}

		accountID := strings.TrimSpace(claims.Subject)
		if accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid access token"))
			return
		}

		c.Set(AccountIDKey, accountID)
		GetRequestContext(c).AccountID = accountID

		c.Next()
	}
}

// GetAuthenticatedAccountID returns the account id stored by RequireAuth.
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	id := c.GetString(AccountIDKey)
	return id, id != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
