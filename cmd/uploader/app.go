package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Packages
	logrus "github.com/sirupsen/logrus"
	term "golang.org/x/term"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	Endpoint string        `env:"UPLOAD_ENDPOINT" default:"http://localhost:8080/api/upload" help:"Upload service endpoint"`
	Token    string        `env:"UPLOAD_TOKEN" help:"Bearer token sent with every request"`
	Timeout  time.Duration `name:"timeout" default:"30s" help:"HTTP request timeout, excluding chunk and file transfers"`
	Debug    bool          `help:"Enable debug output"`
	Trace    bool          `help:"Enable trace output"`

	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func NewApp(app Globals) (*Globals, error) {
	// Create the logger
	app.logger = logrus.New()
	app.logger.SetOutput(os.Stderr)
	if app.Debug || app.Trace {
		app.logger.SetLevel(logrus.DebugLevel)
	} else {
		app.logger.SetLevel(logrus.InfoLevel)
	}

	// Create the context
	// This context is cancelled when the process receives a SIGINT or SIGTERM
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Return the app
	return &app, nil
}

func (app *Globals) Close() error {
	app.cancel()
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// METHODS

func (app *Globals) Context() context.Context {
	return app.ctx
}

func (app *Globals) Logger() logrus.FieldLogger {
	return app.logger
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
