// internal/api/responses/responses.go
package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

// APIResponse defines the standard envelope for API responses.
type APIResponse struct {
	Status  string      `json:"status"` // "success" or "error"
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// InitLogger builds the process logger and uses it for response logging.
// Debug mode gets the human-readable development encoder.
func InitLogger(mode string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if mode == gin.DebugMode {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	logger = l
	return l, nil
}

// SetLogger replaces the response logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Success sends a successful response with the provided data and message.
func Success(c *gin.Context, data interface{}, message string) {
	resp := APIResponse{Status: "success", Data: data, Message: message}
	c.JSON(http.StatusOK, resp)
	logger.Info("API success", zap.String("path", c.Request.URL.Path), zap.Int("status", http.StatusOK))
}

// Error sends an error response with the provided code, message, and optional errors.
func Error(c *gin.Context, code int, message string, errs ...string) {
	resp := APIResponse{Status: "error", Message: message, Errors: errs}
	c.AbortWithStatusJSON(code, resp)
	fields := []zap.Field{zap.String("path", c.Request.URL.Path), zap.Int("status", code), zap.Strings("errors", errs)}
	if code >= http.StatusInternalServerError {
		logger.Error("API error", fields...)
		return
	}
	logger.Warn("API error", fields...)
}
