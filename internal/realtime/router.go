package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Error codes handlers can abort with. The router maps them into the error
// string of an error response; anything else becomes CodeInternal.
const (
	CodeNotFound   = "not_found"
	CodeValidation = "validation"
	CodeConflict   = "conflict"
	CodeInternal   = "internal"
)

// Error is the tagged abort result for handlers: a kind plus a message,
// instead of flow control by panic.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Request is the dispatched view of a request envelope: extracted path
// params, the raw body, and the originating connection.
type Request struct {
	Method string
	Path   string
	Params map[string]string
	Body   json.RawMessage
	Conn   *Conn
}

// HandlerFunc produces the response payload for a request, or an error. A
// *Error return is translated to its code+message; any other error is
// reported as internal.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

type segment struct {
	literal string
	param   string
}

type route struct {
	method   string
	pattern  string
	segments []segment
	handler  HandlerFunc
}

// Router dispatches request envelopes by method and path pattern. Patterns
// are compiled into segment matchers at registration; `:name` segments match
// any single non-empty segment and are captured. Overlapping patterns
// resolve by registration order, first registered wins.
type Router struct {
	mu     sync.RWMutex
	routes []route
}

func NewRouter() *Router {
	return &Router{}
}

// On registers a handler for a method and path pattern, e.g.
// On("GET", "/tickets/:id", h).
func (r *Router) On(method, pattern string, handler HandlerFunc) {
	parts := splitPath(pattern)
	segments := make([]segment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, ":") {
			segments = append(segments, segment{param: p[1:]})
		} else {
			segments = append(segments, segment{literal: p})
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{
		method:   strings.ToUpper(method),
		pattern:  pattern,
		segments: segments,
		handler:  handler,
	})
}

// Dispatch runs the matching handler and translates the outcome into a wire
// envelope. The second return is false when no frame should be written back
// (a successful fire-and-forget request without a correlation id). Nothing
// here is allowed to take down the caller: handler panics are recovered and
// answered as internal errors.
func (r *Router) Dispatch(ctx context.Context, env Envelope, c *Conn) (reply Envelope, send bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("ws %s %s: handler panic: %v", env.Method, env.Path, rec)
			reply, send = r.errorFrame(env.ID, CodeInternal, fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	handler, params, ok := r.match(env.Method, env.Path)
	if !ok {
		return r.errorFrame(env.ID, CodeNotFound, fmt.Sprintf("no route for %s %s", env.Method, env.Path))
	}

	result, err := handler(ctx, &Request{
		Method: strings.ToUpper(env.Method),
		Path:   env.Path,
		Params: params,
		Body:   env.Body,
		Conn:   c,
	})
	if err != nil {
		wsErr, ok := err.(*Error)
		if !ok {
			log.Printf("ws %s %s: handler error: %v", env.Method, env.Path, err)
			wsErr = &Error{Code: CodeInternal, Message: err.Error()}
		}
		return r.errorFrame(env.ID, wsErr.Code, wsErr.Message)
	}
	if env.ID == "" {
		return Envelope{}, false
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("ws %s %s: encode response: %v", env.Method, env.Path, err)
		return errResponse(env.ID, CodeInternal+": encode response"), true
	}
	return okResponse(env.ID, data), true
}

// errorFrame picks the right error shape: an error response when the
// request carried a correlation id, a standalone error event otherwise.
func (r *Router) errorFrame(id, code, message string) (Envelope, bool) {
	if id == "" {
		return errorEvent(code + ": " + message), true
	}
	return errResponse(id, code+": "+message), true
}

func (r *Router) match(method, path string) (HandlerFunc, map[string]string, bool) {
	method = strings.ToUpper(method)
	parts := splitPath(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if rt.method != method {
			continue
		}
		params, ok := matchSegments(rt.segments, parts)
		if ok {
			return rt.handler, params, true
		}
	}
	return nil, nil, false
}

func matchSegments(segments []segment, parts []string) (map[string]string, bool) {
	if len(segments) != len(parts) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range segments {
		if seg.param != "" {
			if parts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = map[string]string{}
			}
			params[seg.param] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
