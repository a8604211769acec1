package worker

import (
	"context"
	"testing"
)

// testContext returns a context canceled when the test ends, standing in
// for testing.T.Context which requires Go 1.24.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
