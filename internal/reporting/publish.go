package reporting

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink persists a finished run.
type Sink interface {
	Publish(ctx context.Context, run *Run) error
}

// FileSink writes one report format to a path.
type FileSink struct {
	Format string
	Path   string
}

// Publish opens the reporter, writes run and closes it.
func (s FileSink) Publish(ctx context.Context, run *Run) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := New(s.Format, s.Path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := r.Write(run); err != nil {
		return fmt.Errorf("writing %s report: %w", s.Format, err)
	}
	return nil
}

// FileSinks maps the configured formats to sinks under outputDir. The
// table is left out; it is printed to the terminal separately.
func FileSinks(outputDir string, formats []string, run *Run) []Sink {
	var sinks []Sink
	for _, f := range formats {
		switch f {
		case "csv":
			sinks = append(sinks, FileSink{Format: f, Path: SpreadsheetPath(outputDir, run)})
		case "json":
			sinks = append(sinks, FileSink{Format: f, Path: LastRunPath(outputDir)})
		}
	}
	return sinks
}

// PublishAll runs every sink concurrently and returns the first error. Each
// failure is logged so one broken sink does not hide another.
func PublishAll(ctx context.Context, logger *zap.Logger, run *Run, sinks ...Sink) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sinks {
		g.Go(func() error {
			if err := s.Publish(gctx, run); err != nil {
				logger.Error("Failed to publish run.", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
