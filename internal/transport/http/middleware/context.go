package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	appLogger "github.com/atymri/Promptino/internal/infra/logger"
)

const (
	// TraceIDHeader carries the trace id back to the client.
	TraceIDHeader = "X-Trace-ID"
	// RequestIDHeader carries the correlation id supplied by the caller or generated here.
	RequestIDHeader = "X-Request-ID"

	// TraceIDKey is the gin context key for the trace id.
	TraceIDKey = "trace_id"
	// RequestIDKey is the gin context key for the request id.
	RequestIDKey = "request_id"
	// AccountIDKey is the gin context key for the authenticated account id.
	AccountIDKey = "account_id"

	requestContextKey = "request_context"
)

// RequestContext holds request-scoped metadata shared by the access log and error responses.
type RequestContext struct {
	TraceID   string
	RequestID string
	AccountID string
	IP        string
	UserAgent string
}

// EnrichContext assigns the trace id. An active OpenTelemetry span wins over the X-Trace-ID header,
// and a fresh uuid is used when neither is present.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = c.GetHeader(TraceIDHeader)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		reqCtx := GetRequestContext(c)
		reqCtx.TraceID = traceID
		reqCtx.IP = c.ClientIP()
		reqCtx.UserAgent = c.Request.UserAgent()
		c.Set(requestContextKey, reqCtx)

		c.Next()
	}
}

// RequestID propagates X-Request-ID into the request context so logger.WithContext can pick it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Header(RequestIDHeader, reqID)
		c.Set(RequestIDKey, reqID)
		c.Request = c.Request.WithContext(appLogger.ContextWithRequestID(c.Request.Context(), reqID))

		reqCtx := GetRequestContext(c)
		reqCtx.RequestID = reqID
		c.Set(requestContextKey, reqCtx)

		c.Next()
	}
}

// GetTraceID returns the trace id set by EnrichContext.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetRequestContext returns the request metadata, creating an empty one when absent.
func GetRequestContext(c *gin.Context) *RequestContext {
	if value, ok := c.Get(requestContextKey); ok {
		if reqCtx, ok := value.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}
