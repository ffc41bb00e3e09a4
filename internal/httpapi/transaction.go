package httpapi

import (
	"net/http"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
)

// statusRecorder captures the status code a handler wrote, so the
// transaction middleware below it can decide whether to commit or roll
// back.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WithTransaction opens a TransactionalScope for the request, committing on
// a non-error response and rolling back otherwise (§5: "every top-level
// service method runs inside a TransactionalScope bound to the
// ReferenceStore"). A handler that panics has its scope rolled back before
// the panic continues; middleware.Recoverer above this one in the chain
// still converts the panic into a 500.
func WithTransaction(uow capability.UnitOfWork) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope, err := uow.Begin(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					_ = scope.Rollback(ctx)
					panic(p)
				}
			}()
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status >= 400 {
				_ = scope.Rollback(ctx)
				return
			}
			if err := scope.Commit(ctx); err != nil {
				_ = scope.Rollback(ctx)
			}
		})
	}
}
