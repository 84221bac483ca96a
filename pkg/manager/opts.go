package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	// Packages
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	notify "github.com/mutablelogic/go-upload/pkg/notify"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	logrus "github.com/sirupsen/logrus"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for upload manager configuration.
type Opt func(*opts) error

type opts struct {
	tracer       trace.Tracer
	logger       logrus.FieldLogger
	backend      backend.Backend
	notifier     notify.Notifier
	maxChunkSize int64
	ttl          time.Duration
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// DefaultSessionTTL is the idle time after which a session is pruned
const DefaultSessionTTL = 24 * time.Hour

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithTracer sets the tracer used for tracing operations.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
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

// WithBackend opens a blob backend (mem://, file://, s3://) for storage.
// Only one backend can be set.
func WithBackend(ctx context.Context, url string, backendOpts ...backend.Opt) Opt {
	return func(o *opts) error {
		if o.backend != nil {
			return fmt.Errorf("backend %q already registered", o.backend.Name())
		}
		b, err := backend.NewBlobBackend(ctx, url, backendOpts...)
		if err != nil {
			return err
		}
		o.backend = b
		return nil
	}
}

// WithNotifier publishes an event for every committed file
func WithNotifier(notifier notify.Notifier) Opt {
	return func(o *opts) error {
		o.notifier = notifier
		return nil
	}
}

// WithMaxChunkSize sets the largest chunk accepted
func WithMaxChunkSize(size int64) Opt {
	return func(o *opts) error {
		if size <= 0 || size > schema.MaxChunkSize {
			return fmt.Errorf("max chunk size out of range: %d", size)
		}
		o.maxChunkSize = size
		return nil
	}
}

// WithSessionTTL sets the idle time after which sessions are pruned
func WithSessionTTL(ttl time.Duration) Opt {
	return func(o *opts) error {
		if ttl <= 0 {
			return fmt.Errorf("session ttl out of range: %v", ttl)
		}
		o.ttl = ttl
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Set defaults
	o := opts{
		logger:       logrus.StandardLogger(),
		maxChunkSize: schema.MaxChunkSize,
		ttl:          DefaultSessionTTL,
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			if o.backend != nil {
				err = errors.Join(err, o.backend.Close())
			}
			return opts{}, err
		}
	}

	// A backend is required
	if o.backend == nil {
		return opts{}, errors.New("missing backend")
	}

	// Return success
	return o, nil
}
