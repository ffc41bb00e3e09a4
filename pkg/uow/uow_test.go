package uow

import (
	"context"
	"testing"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
)

// compileCheck pins the concrete types to their capability interfaces; it
// exists purely so a signature drift fails the build.
var (
	_ capability.TransactionalScope = (*Scope)(nil)
	_ capability.UnitOfWork         = (*UnitOfWork)(nil)
)

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no scope on a bare context")
	}
}
