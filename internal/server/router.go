package server

import (
	"net/http"
	"slices"
	"strings"
)

// BasicRouter implements [Router] on top of [http.ServeMux].
//
// Method filtering happens in the router, so paths registered through [BasicRouter.Handle]
// answer every other method with a JSON 405.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	patterns    []string
}

func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware; the first one added is the outermost.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method and path, wrapped with the current middleware stack.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	wrapped := r.Apply(handler)

	r.register(path, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.EqualFold(req.Method, method) {
			w.Header().Set("Allow", strings.ToUpper(method))
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		wrapped.ServeHTTP(w, req)
	}))
}

// Handler registers every route returned by [Handler.Routes] to handler.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.Apply(handler)
	for _, route := range handler.Routes() {
		r.register(route, wrapped)
	}
}

// Routes lists the registered patterns in registration order.
func (r *BasicRouter) Routes() []string {
	return slices.Clone(r.patterns)
}

func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps handler so that the middleware added first runs first.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for _, mw := range slices.Backward(r.middlewares) {
		wrapped = mw(wrapped)
	}
	return wrapped
}

func (r *BasicRouter) register(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
	r.patterns = append(r.patterns, pattern)
}
