// Package httpclient provides an instrumented JSON HTTP client for upstream
// market, proof and aggregator APIs.
package httpclient

import (
	"context"
	"maps"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/fd1az/arbguard/internal/httpclient"

	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute
)

// Client creates instrumented requests against one upstream.
type Client interface {
	NewRequestWithOptions(opts ...RequestOption) Request
}

// TraceOption selects which bodies are attached to request spans.
type TraceOption string

const (
	TraceRequest  TraceOption = "request"
	TraceResponse TraceOption = "response"
)

type clientOptions struct {
	providerName   string
	baseURL        string
	headers        map[string]string
	requestTimeout time.Duration
	tracer         trace.Tracer
	logRequest     bool
	logResponse    bool
}

// ClientOption configures NewInstrumentedClient.
type ClientOption func(*clientOptions)

// WithProviderName labels spans and metrics with the upstream name.
func WithProviderName(name string) ClientOption {
	return func(o *clientOptions) { o.providerName = name }
}

// WithBaseURL resolves relative request paths against url.
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) { o.baseURL = url }
}

// WithHeaders sets headers sent on every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *clientOptions) { o.headers = headers }
}

// WithRequestTimeout bounds each request end to end.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) { o.requestTimeout = timeout }
}

// WithTraceOptions sets the tracer and which bodies go on the span.
func WithTraceOptions(tracer trace.Tracer, opts ...TraceOption) ClientOption {
	return func(o *clientOptions) {
		o.tracer = tracer
		for _, opt := range opts {
			switch opt {
			case TraceRequest:
				o.logRequest = true
			case TraceResponse:
				o.logResponse = true
			}
		}
	}
}

type instrumentedClient struct {
	http     *http.Client
	requests metric.Int64Counter
	duration metric.Float64Histogram
	opts     clientOptions
}

// NewInstrumentedClient creates a Client whose transport is traced with
// otelhttp and whose requests are counted per provider.
func NewInstrumentedClient(opts ...ClientOption) (Client, error) {
	o := clientOptions{
		providerName:   "default",
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{KeepAlive: 10 * time.Second}).DialContext,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ExpectContinueTimeout: 100 * time.Millisecond,
	}

	meter := otel.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("provider", o.providerName)))
	requests, err := meter.Int64Counter("http_client_requests_total",
		metric.WithDescription("Upstream HTTP requests by provider and outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_client_request_duration_seconds",
		metric.WithDescription("Upstream HTTP request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &instrumentedClient{
		http: &http.Client{
			Timeout: o.requestTimeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				})),
		},
		requests: requests,
		duration: duration,
		opts:     o,
	}, nil
}

func (c *instrumentedClient) NewRequestWithOptions(opts ...RequestOption) Request {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	headers := make(map[string]string, len(c.opts.headers))
	maps.Copy(headers, c.opts.headers)
	return &requestBuilder{
		client:  c,
		options: ro,
		headers: headers,
		query:   make(map[string]string),
	}
}

// ResponseErrorHandler turns a response into an error, or returns nil to
// accept it.
type ResponseErrorHandler func(statusCode int, body []byte) error

type requestOptions struct {
	errorHandler ResponseErrorHandler
	labels       []*Label
}

// RequestOption configures one request.
type RequestOption func(*requestOptions)

// WithResponseErrorHandler maps upstream error bodies to typed errors.
func WithResponseErrorHandler(handler ResponseErrorHandler) RequestOption {
	return func(o *requestOptions) { o.errorHandler = handler }
}

// Label is an extra metric attribute.
type Label struct {
	Key   string
	Value string
}

// NewLabel creates a Label.
func NewLabel(key, value string) *Label {
	return &Label{Key: key, Value: value}
}

// WithLabels attaches labels to the request metrics.
func WithLabels(labels ...*Label) RequestOption {
	return func(o *requestOptions) { o.labels = labels }
}
