package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	// Packages
	httprouter "github.com/mutablelogic/go-server/pkg/httprouter"
	httpserver "github.com/mutablelogic/go-server/pkg/httpserver"
	types "github.com/mutablelogic/go-server/pkg/types"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	notify "github.com/mutablelogic/go-upload/pkg/notify"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	version "github.com/mutablelogic/go-upload/pkg/version"
	otel "go.opentelemetry.io/otel"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ServerCommands struct {
	Server RunServerCommand `cmd:"" name:"server" help:"Run the upload server." group:"SERVER"`
}

type RunServerCommand struct {
	Backend    string        `name:"backend" env:"UPLOAD_BACKEND" default:"mem://uploads" help:"Backend URL (e.g. mem://name, file://name/path, s3://bucket/prefix)"`
	Listen     string        `name:"listen" default:"localhost:8080" help:"Address to listen on"`
	Prefix     string        `name:"prefix" default:"/api/upload" help:"Path prefix for the API"`
	Origin     string        `name:"origin" default:"*" help:"CORS origin"`
	TTL        time.Duration `name:"ttl" default:"24h" help:"Idle time after which an upload session is discarded"`
	S3Endpoint string        `name:"s3-endpoint" env:"UPLOAD_S3_ENDPOINT" help:"Endpoint for S3-compatible storage"`
	Region     string        `name:"region" env:"AWS_REGION" help:"AWS region"`
	SQSQueue   string        `name:"sqs-queue" env:"UPLOAD_SQS_QUEUE" help:"SQS queue URL for completion notifications"`
	CreateDir  bool          `name:"create-dir" help:"Create the directory for a file:// backend"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *RunServerCommand) Run(app *Globals) error {
	// Options shared by the backend and the notifier
	var backendOpts []backend.Opt
	if cmd.S3Endpoint != "" {
		backendOpts = append(backendOpts, backend.WithEndpoint(cmd.S3Endpoint))
	}
	if cmd.Region != "" {
		backendOpts = append(backendOpts, backend.WithRegion(cmd.Region))
	}
	if cmd.CreateDir {
		backendOpts = append(backendOpts, backend.WithCreateDir())
	}

	// Spans go to the globally registered provider
	opts := []manager.Opt{
		manager.WithLogger(app.Logger()),
		manager.WithSessionTTL(cmd.TTL),
	}
	if app.Trace {
		tracer := otel.Tracer(schema.SchemaName)
		backendOpts = append(backendOpts, backend.WithTracer(tracer))
		opts = append(opts, manager.WithTracer(tracer))
	}

	// Create manager with the backend
	opts = append(opts, manager.WithBackend(app.ctx, cmd.Backend, backendOpts...))
	if cmd.SQSQueue != "" {
		notifier, err := newSQSNotifier(app.ctx, cmd.SQSQueue, cmd.Region)
		if err != nil {
			return err
		}
		opts = append(opts, manager.WithNotifier(notifier))
	}
	mgr, err := manager.New(app.ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer mgr.Close()

	return cmd.serve(app, mgr)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// serve registers HTTP handlers and runs the server and session pruning
// until the context is done.
func (cmd *RunServerCommand) serve(app *Globals, mgr *manager.Manager) error {
	// Create the router
	router, err := httprouter.NewRouter(app.ctx, types.NormalisePath(cmd.Prefix), cmd.Origin, "upload", version.Version())
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	// Register upload HTTP handlers
	if err := httphandler.RegisterHandlers(mgr, router); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	// Create the HTTP server
	srv, err := httpserver.New(cmd.Listen, http.Handler(router), nil)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	app.logger.WithField("backend", mgr.Backend().URL().String()).Infof("upload@%s started on %s", version.Version(), cmd.Listen)
	group, ctx := errgroup.WithContext(app.ctx)
	group.Go(func() error {
		return srv.Run(ctx)
	})
	group.Go(func() error {
		return mgr.Run(ctx)
	})
	if err := group.Wait(); err != nil {
		return err
	}
	app.logger.Info("upload stopped")
	return nil
}

func newSQSNotifier(ctx context.Context, queueURL, region string) (*notify.SQS, error) {
	var opts []backend.Opt
	if region != "" {
		opts = append(opts, backend.WithRegion(region))
	}
	cfg, err := backend.LoadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return notify.NewSQS(cfg, queueURL)
}
