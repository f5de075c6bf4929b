package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Request builds and executes one call.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)

	SetBody(body any) Request
	SetQueryParam(key, value string) Request
	SetQueryParams(params map[string]string) Request
	SetResult(result any) Request
}

// Response is a fully read upstream response.
type Response struct {
	*http.Response
	body []byte
}

// String returns the body as text.
func (r *Response) String() string {
	return string(r.body)
}

// IsError reports a 4xx or 5xx status.
func (r *Response) IsError() bool {
	return r.StatusCode >= http.StatusBadRequest
}

type requestBuilder struct {
	client  *instrumentedClient
	options requestOptions
	headers map[string]string
	query   map[string]string
	body    any
	result  any
}

func (r *requestBuilder) Get(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, path)
}

func (r *requestBuilder) Post(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, path)
}

// SetBody sets a JSON body; []byte and string are sent as is.
func (r *requestBuilder) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *requestBuilder) SetQueryParam(key, value string) Request {
	r.query[key] = value
	return r
}

func (r *requestBuilder) SetQueryParams(params map[string]string) Request {
	for k, v := range params {
		r.query[k] = v
	}
	return r
}

// SetResult sets the value a 2xx body is decoded into.
func (r *requestBuilder) SetResult(result any) Request {
	r.result = result
	return r
}

func (r *requestBuilder) url(path string) string {
	full := path
	if base := r.client.opts.baseURL; base != "" && !strings.HasPrefix(path, "http") {
		full = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(r.query) == 0 {
		return full
	}
	q := url.Values{}
	for k, v := range r.query {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(full, "?") {
		sep = "&"
	}
	return full + sep + q.Encode()
}

func (r *requestBuilder) encodeBody(span trace.Span) (io.Reader, error) {
	var raw []byte
	switch b := r.body.(type) {
	case nil:
		return nil, nil
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		raw = encoded
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
	}
	if r.client.opts.logRequest {
		span.AddEvent("request.body", trace.WithAttributes(attribute.String("http.request_body", string(raw))))
	}
	return bytes.NewReader(raw), nil
}

func (r *requestBuilder) execute(ctx context.Context, method, path string) (*Response, error) {
	c := r.client
	ctx, span := c.opts.tracer.Start(ctx, "http.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.String("provider", c.opts.providerName),
		))
	defer span.End()

	start := time.Now()
	fail := func(err error, msg string) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		r.record(ctx, start, false)
		return err
	}

	body, err := r.encodeBody(span)
	if err != nil {
		return nil, fail(err, "encode body")
	}

	req, err := http.NewRequestWithContext(ctx, method, r.url(path), body)
	if err != nil {
		return nil, fail(fmt.Errorf("failed to create request: %w", err), "create request")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			span.SetAttributes(attribute.Bool("context.cancelled", true))
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			span.SetAttributes(attribute.Bool("request.timeout", true))
		}
		return nil, fail(err, err.Error())
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fail(fmt.Errorf("failed to read response body: %w", err), "read body")
	}
	if c.opts.logResponse {
		span.AddEvent("response.body", trace.WithAttributes(attribute.String("http.response_body", string(raw))))
	}

	out := &Response{Response: resp, body: raw}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if h := r.options.errorHandler; h != nil {
		if err := h(resp.StatusCode, raw); err != nil {
			return out, fail(err, "upstream error")
		}
	}

	// Error bodies are left to the caller; a 2xx body that does not decode
	// is a protocol error.
	if r.result != nil && len(raw) > 0 && !out.IsError() {
		if err := json.Unmarshal(raw, r.result); err != nil {
			return out, fail(fmt.Errorf("failed to decode response body: %w", err), "decode body")
		}
	}

	r.record(ctx, start, !out.IsError())
	return out, nil
}

func (r *requestBuilder) record(ctx context.Context, start time.Time, success bool) {
	attrs := make([]attribute.KeyValue, 0, len(r.options.labels)+2)
	attrs = append(attrs,
		attribute.String("provider", r.client.opts.providerName),
		attribute.Bool("success", success))
	for _, l := range r.options.labels {
		attrs = append(attrs, attribute.String(l.Key, l.Value))
	}
	set := metric.WithAttributes(attrs...)
	r.client.requests.Add(ctx, 1, set)
	r.client.duration.Record(ctx, time.Since(start).Seconds(), set)
}
