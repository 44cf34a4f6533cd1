package observability

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
)

func PanicIfNotNil(ctx context.Context, r any) {
	if r == nil {
		return
	}
	logger.FromCtx(ctx).
		WithField("error_event_exception_stack_trace", string(debug.Stack())).
		Errorf("got panic: %v", r)
	belt.Flush(ctx)
	panic(fmt.Sprintf("%#+v", r))
}
