package transfer

import (
	"fmt"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for the engine and coordinator
type Opt func(*opts) error

type opts struct {
	chunkSize   int64
	threshold   int64
	concurrency int
	retry       RetryPolicy
	logger      logrus.FieldLogger
	tracer      trace.Tracer
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// DefaultChunkSize is the chunk size requested when initiating a session
	DefaultChunkSize = schema.DefaultChunkSize

	// DefaultThreshold is the size at or above which a file is sent in chunks
	DefaultThreshold = 80_000_000

	// DefaultConcurrency is the number of transfers in flight at once
	DefaultConcurrency = 2
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithChunkSize sets the chunk size requested from the server. The server
// may choose a different size.
func WithChunkSize(size int64) Opt {
	return func(o *opts) error {
		if size <= 0 || size > schema.MaxChunkSize {
			return fmt.Errorf("chunk size out of range: %d", size)
		}
		o.chunkSize = size
		return nil
	}
}

// WithThreshold sets the size at or above which files are sent in chunks
func WithThreshold(size int64) Opt {
	return func(o *opts) error {
		if size <= 0 {
			return fmt.Errorf("threshold out of range: %d", size)
		}
		o.threshold = size
		return nil
	}
}

// WithConcurrency sets the number of transfers in flight at once
func WithConcurrency(n int) Opt {
	return func(o *opts) error {
		if n < 1 {
			return fmt.Errorf("concurrency out of range: %d", n)
		}
		o.concurrency = n
		return nil
	}
}

// WithRetryPolicy sets the retry policy applied to each chunk
func WithRetryPolicy(policy RetryPolicy) Opt {
	return func(o *opts) error {
		if policy.MaxAttempts < 1 {
			return fmt.Errorf("max attempts out of range: %d", policy.MaxAttempts)
		}
		if policy.Unit < 0 {
			return fmt.Errorf("retry unit out of range: %v", policy.Unit)
		}
		o.retry = policy
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Opt {
	return func(o *opts) error {
		o.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used for tracing operations.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Set defaults
	o := opts{
		chunkSize:   DefaultChunkSize,
		threshold:   DefaultThreshold,
		concurrency: DefaultConcurrency,
		retry:       DefaultRetryPolicy(),
		logger:      logrus.StandardLogger(),
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}

	// Return success
	return o, nil
}

func spanName(op string) string {
	return schema.SchemaName + ".transfer." + op
}
