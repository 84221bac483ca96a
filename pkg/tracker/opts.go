package tracker

import (
	"fmt"
	"time"

	// Packages
	logrus "github.com/sirupsen/logrus"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for the tracker
type Opt func(*opts) error

type opts struct {
	idle   time.Duration
	logger logrus.FieldLogger
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// DefaultIdle is the time after a batch settles before entries are cleared
const DefaultIdle = 8 * time.Second

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithIdle sets the idle interval after which settled entries are cleared.
// Zero disables the automatic clear.
func WithIdle(idle time.Duration) Opt {
	return func(o *opts) error {
		if idle < 0 {
			return fmt.Errorf("idle interval out of range: %v", idle)
		}
		o.idle = idle
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

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Set defaults
	o := opts{
		idle:   DefaultIdle,
		logger: logrus.StandardLogger(),
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
