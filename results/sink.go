// Package results defines where completed test results go. The runner
// never persists anything itself; callers hand the result from the
// completion event to a sink.
package results

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/openrovlabs/thrustbench/bench"
)

// Sink consumes completed test results.
type Sink interface {
	Consume(ctx context.Context, result *bench.TestResult) error
}

// JSONSink writes each consumed result to a writer in the interchange
// encoding.
type JSONSink struct {
	w io.Writer
}

// NewJSONSink returns a sink writing to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

// Consume writes the result followed by a newline.
func (s *JSONSink) Consume(ctx context.Context, result *bench.TestResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := result.MarshalIndentJSON()
	if err != nil {
		return errors.Wrap(err, "couldn't encode result")
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "couldn't write result")
	}
	return nil
}

// SaveFile writes one result to the given path.
func SaveFile(ctx context.Context, path string, result *bench.TestResult) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "couldn't create result file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return NewJSONSink(f).Consume(ctx, result)
}

// LoadFile reads a result previously written by SaveFile.
func LoadFile(path string) (*bench.TestResult, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read result file")
	}
	return bench.ParseResult(data)
}
