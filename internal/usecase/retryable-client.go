package usecase

import (
	"github.com/hashicorp/go-retryablehttp"
	"github.com/iamvkosarev/ai-gateway-sdk/config"
	"go.uber.org/zap"
	"net/http"
)

// NewRetryableClient retries connection failures and 5xx answers. Once the
// attempts run out the last response is handed back along with the error, so
// callers can still map its status.
func NewRetryableClient(cfg config.Auth, httpClient *http.Client, logger *zap.Logger) *retryablehttp.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = NewRetryableLogger(logger)
	return client
}

type retryableLogger struct {
	logger *zap.SugaredLogger
}

// NewRetryableLogger lets a retryablehttp.Client log through zap.
func NewRetryableLogger(logger *zap.Logger) retryablehttp.LeveledLogger {
	return &retryableLogger{logger: logger.Sugar()}
}

func (l *retryableLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *retryableLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *retryableLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *retryableLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}
