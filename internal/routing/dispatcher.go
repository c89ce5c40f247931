// Package routing resolves (method, path) pairs to handlers and wraps their
// results in the uniform response envelope.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"qitp/internal/apierr"
)

// MaxBodyBytes bounds request bodies read by ServeHTTP.
const MaxBodyBytes = 1 << 20

// Request is the transport-neutral view of an incoming call.
type Request struct {
	Method string
	Path   string
	Params map[string]string
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Param returns the named path parameter.
func (r Request) Param(name string) string {
	return r.Params[name]
}

// QueryString returns the trimmed query value for name.
func (r Request) QueryString(name string) string {
	return strings.TrimSpace(r.Query.Get(name))
}

// QueryInt returns the query value for name parsed as an integer, or def
// when it is absent or malformed.
func (r Request) QueryInt(name string, def int) int {
	raw := r.QueryString(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r Request) Decode(v any) error {
	if len(strings.TrimSpace(string(r.Body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return apierr.BadRequest("请求体格式错误: " + err.Error())
	}
	return nil
}

// HandlerFunc serves one route. A returned error becomes the response: its
// apierr status (400/404) or 500 with the error message.
type HandlerFunc func(ctx context.Context, req Request) (Envelope, error)

type route struct {
	method  string
	pattern Pattern
	handler HandlerFunc
}

// RouteInfo describes a registered route.
type RouteInfo struct {
	Method  string
	Pattern string
}

// Dispatcher holds routes in registration order. The first route whose
// method and pattern match wins; overlapping patterns are not detected.
type Dispatcher struct {
	mu      sync.RWMutex
	routes  []route
	latency time.Duration
	logger  *zap.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLatency delays every dispatch by d to mimic network latency.
func WithLatency(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.latency = d
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *zap.Logger) Option {
	return func(disp *Dispatcher) {
		if logger != nil {
			disp.logger = logger
		}
	}
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle registers h for method and pattern. It panics on a malformed
// pattern, like http.ServeMux.
func (d *Dispatcher) Handle(method, pattern string, h HandlerFunc) {
	compiled, err := CompilePattern(pattern)
	if err != nil {
		panic(fmt.Sprintf("routing: %v", err))
	}
	if h == nil {
		panic("routing: nil handler for " + method + " " + pattern)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{method: strings.ToUpper(method), pattern: compiled, handler: h})
}

// Get registers a GET route.
func (d *Dispatcher) Get(pattern string, h HandlerFunc) { d.Handle(http.MethodGet, pattern, h) }

// Post registers a POST route.
func (d *Dispatcher) Post(pattern string, h HandlerFunc) { d.Handle(http.MethodPost, pattern, h) }

// Put registers a PUT route.
func (d *Dispatcher) Put(pattern string, h HandlerFunc) { d.Handle(http.MethodPut, pattern, h) }

// Patch registers a PATCH route.
func (d *Dispatcher) Patch(pattern string, h HandlerFunc) { d.Handle(http.MethodPatch, pattern, h) }

// Delete registers a DELETE route.
func (d *Dispatcher) Delete(pattern string, h HandlerFunc) { d.Handle(http.MethodDelete, pattern, h) }

// Routes lists the registered routes in resolution order.
func (d *Dispatcher) Routes() []RouteInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]RouteInfo, len(d.routes))
	for i, r := range d.routes {
		out[i] = RouteInfo{Method: r.method, Pattern: r.pattern.String()}
	}
	return out
}

// Match resolves method and path to a handler and its path parameters.
func (d *Dispatcher) Match(method, path string) (HandlerFunc, map[string]string, bool) {
	method = strings.ToUpper(method)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.routes {
		if r.method != method {
			continue
		}
		if params, ok := r.pattern.Match(path); ok {
			return r.handler, params, true
		}
	}
	return nil, nil, false
}

// Dispatch resolves req and runs the matching handler. Unmatched requests
// yield a 404 envelope; handler errors and panics are converted centrally.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Envelope {
	if d.latency > 0 {
		timer := time.NewTimer(d.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Failure(http.StatusInternalServerError, ctx.Err().Error())
		case <-timer.C:
		}
	}
	h, params, ok := d.Match(req.Method, req.Path)
	if !ok {
		return Failure(http.StatusNotFound, MessageNotFound)
	}
	req.Params = params
	if req.Query == nil {
		req.Query = url.Values{}
	}
	return d.invoke(ctx, h, req)
}

func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, req Request) (env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("handler panic",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			env = Failure(http.StatusInternalServerError, failureMessage(fmt.Sprint(rec)))
		}
	}()
	env, err := h(ctx, req)
	if err != nil {
		status := apierr.StatusOf(err)
		if status >= http.StatusInternalServerError {
			d.logger.Error("handler failed",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Error(err),
			)
		}
		return Failure(status, failureMessage(err.Error()))
	}
	if env.Code == 0 {
		env.Code = http.StatusOK
	}
	if env.Message == "" && env.Succeeded() {
		env.Message = MessageOK
	}
	return env
}

func failureMessage(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return MessageInternal
	}
	return msg
}

// ServeHTTP adapts an HTTP request to Dispatch and writes the envelope.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteEnvelope(w, Failure(http.StatusRequestEntityTooLarge, "请求体过大"))
				return
			}
			WriteEnvelope(w, Failure(http.StatusBadRequest, "读取请求体失败"))
			return
		}
		body = data
	}
	env := d.Dispatch(r.Context(), Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
		Header: r.Header.Clone(),
	})
	WriteEnvelope(w, env)
}
