package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// LoggerOptions are stamped on every line a bedflow process writes
type LoggerOptions struct {
	Service string
	Version string
	Env     string
	// Store is the persistence driver; empty for processes without a store
	Store string
	// Output defaults to stdout
	Output io.Writer
}

// InitLogger installs the global zerolog logger. Development gets console output,
// everything else JSON with caller information.
func InitLogger(opts LoggerOptions) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = NewLogger(opts)
}

// NewLogger builds a logger carrying the process fields from opts
func NewLogger(opts LoggerOptions) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var ctx zerolog.Context
	if opts.Env == "development" {
		ctx = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp()
	} else {
		ctx = zerolog.New(out).With().Timestamp().Caller()
	}

	ctx = ctx.Str("service", opts.Service).Str("env", opts.Env)
	if opts.Version != "" {
		ctx = ctx.Str("version", opts.Version)
	}
	if opts.Store != "" {
		ctx = ctx.Str("store", opts.Store)
	}
	return ctx.Logger()
}

// LoggerFromContext returns the global logger, tagged with trace and span ids when ctx
// carries a span so bed transitions can be joined to their request traces
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := log.Logger
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &logger
}
