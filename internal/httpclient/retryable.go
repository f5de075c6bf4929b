package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fd1az/arbguard/internal/logger"
)

// RetryConfig tunes a retrying client.
type RetryConfig struct {
	Name         string
	Timeout      time.Duration // per attempt
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewRetryableClient returns a retrying client over an OTel-instrumented
// transport. Connection errors and 5xx/429 responses are retried.
func NewRetryableClient(cfg RetryConfig, log logger.LoggerInterface) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	if cfg.RetryWaitMin > 0 {
		c.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		c.RetryWaitMax = cfg.RetryWaitMax
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	c.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return cfg.Name + " " + r.Method
			})),
	}
	c.Logger = leveledLogger{log: log, name: cfg.Name}
	return c
}

// leveledLogger adapts the application logger to retryablehttp.
type leveledLogger struct {
	log  logger.LoggerInterface
	name string
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, kv ...any) {
	l.log.Error(context.Background(), msg, append(kv, "client", l.name)...)
}

func (l leveledLogger) Info(msg string, kv ...any) {
	l.log.Debug(context.Background(), msg, append(kv, "client", l.name)...)
}

func (l leveledLogger) Debug(msg string, kv ...any) {
	l.log.Debug(context.Background(), msg, append(kv, "client", l.name)...)
}

func (l leveledLogger) Warn(msg string, kv ...any) {
	l.log.Warn(context.Background(), msg, append(kv, "client", l.name)...)
}
