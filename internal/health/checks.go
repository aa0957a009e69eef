package health

import (
	"context"
	"fmt"

	"github.com/podcast2transcript/p2t/internal/worker"
)

// CacheWritable returns a checker that fails when the model artifact cache
// cannot accept new files. probe is typically [worker.Fetcher.CheckWritable].
func CacheWritable(probe func() error) Checker {
	return Checker{
		Name: "model_cache",
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return probe()
		},
	}
}

// WorkerUsable returns a checker that fails while the transcription worker
// is in [worker.StateErrored]. state reports false when no worker is running
// yet, which counts as healthy because the first job spawns one.
func WorkerUsable(state func() (worker.State, bool)) Checker {
	return Checker{
		Name: "worker",
		Check: func(context.Context) error {
			s, ok := state()
			if ok && s == worker.StateErrored {
				return fmt.Errorf("last model load failed; next job will retry")
			}
			return nil
		},
	}
}
