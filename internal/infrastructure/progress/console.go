package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
)

// Console prints one line per stage.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ ports.ProgressSink = (*Console)(nil)

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) OnStageProgress(_ context.Context, event domain.StageEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := "ok"
	if !event.Success {
		status = "failed: " + event.Error
	}
	_, err := fmt.Fprintf(c.out, "[stage %d/4] %-13s %6dms %s\n", event.Stage, event.Name, event.DurationMs(), status)
	return err
}

// Fanout forwards events to several sinks and joins their errors.
type Fanout []ports.ProgressSink

var _ ports.ProgressSink = Fanout(nil)

func (f Fanout) OnStageProgress(ctx context.Context, event domain.StageEvent) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.OnStageProgress(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
