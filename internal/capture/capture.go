// Package capture feeds audio samples into the analyzer's queue.
package capture

import (
	"context"

	"libdb.so/turboglow/internal/spectrum"
)

// Source produces mono samples into a queue until ctx is done. Sources never
// block on a full queue; excess samples are dropped by the queue.
type Source interface {
	Run(ctx context.Context, q *spectrum.Queue) error
}
