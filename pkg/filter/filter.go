package filter

import (
	"context"
	"io"
	"sync/atomic"

	blzdJson "github.com/BLAZED-sh/labelmatch/pkg/json"
	"github.com/BLAZED-sh/labelmatch/pkg/label"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Stats counts the values seen and matched by a filter.
type Stats struct {
	Objects int64
	Matched int64
}

// Filter selects values from a JSON stream by a path of member labels.
type Filter struct {
	path       []label.Label
	extract    bool
	bufferSize int
	maxRead    int
	logger     zerolog.Logger

	objects atomic.Int64
	matched atomic.Int64
}

// NewFilter returns a Filter keeping values that contain path. With extract
// set only the value found at the end of the path is written.
func NewFilter(path []label.Label, extract bool, bufferSize int, maxRead int) *Filter {
	return &Filter{
		path:       path,
		extract:    extract,
		bufferSize: bufferSize,
		maxRead:    maxRead,
		logger:     log.Logger.With().Str("component", "filter").Logger(),
	}
}

// SetLogger replaces the filter's logger.
func (f *Filter) SetLogger(logger zerolog.Logger) {
	f.logger = logger.With().Str("component", "filter").Logger()
}

// Totals returns the counts accumulated over every run of f.
func (f *Filter) Totals() Stats {
	return Stats{Objects: f.objects.Load(), Matched: f.matched.Load()}
}

// Run reads JSON values from r until EOF and writes the matching ones to w,
// one per line. Values that cannot be searched are skipped. The first read or
// write error ends the run. Cancelling ctx closes r if it is an io.Closer and
// Run returns ctx.Err().
func (f *Filter) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lexer := blzdJson.NewJsonStreamLexer(ctx, r, f.bufferSize, f.maxRead)
	return f.run(ctx, cancel, lexer, w)
}

func (f *Filter) run(ctx context.Context, cancel context.CancelFunc, lexer *blzdJson.JsonStreamLexer, w io.Writer) (Stats, error) {
	var stats Stats
	var runErr error
	var scratch []byte

	lexer.DecodeAll(func(b []byte) {
		if runErr != nil {
			return
		}
		stats.Objects++
		f.objects.Add(1)

		value, found, err := blzdJson.LookupPath(b, f.path)
		if err != nil {
			f.logger.Debug().Err(err).Int("size", len(b)).Msg("Skipping malformed value")
			return
		}
		if !found {
			return
		}
		stats.Matched++
		f.matched.Add(1)

		if f.extract {
			b = value
		}
		// b points into the lexer's buffer, so the newline goes into scratch.
		scratch = append(append(scratch[:0], b...), '\n')
		if _, err := w.Write(scratch); err != nil {
			runErr = err
			cancel()
			return
		}

		f.logger.Trace().
			Int("size", len(scratch)).
			Str("body", string(b)).
			Msg("Matched value")
	}, func(err error) {
		if runErr == nil {
			runErr = err
		}
	})

	if runErr == nil {
		runErr = ctx.Err()
	}
	return stats, runErr
}
