package httpclient_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	// Packages
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	upload "github.com/mutablelogic/go-upload"
	httpclient "github.com/mutablelogic/go-upload/pkg/httpclient"
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	logrus "github.com/sirupsen/logrus"
	require "github.com/stretchr/testify/require"
)

///////////////////////////////////////////////////////////////////////////////
// HELPERS

type muxRouter struct {
	*http.ServeMux
}

func (r muxRouter) RegisterFunc(path string, handler http.HandlerFunc, _ bool, _ *openapi.PathItem) error {
	r.HandleFunc(path, handler)
	return nil
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestServer returns a client connected to a server with an in-memory
// backend, and the manager behind it
func newTestServer(t *testing.T) (*httpclient.Client, *manager.Manager) {
	t.Helper()
	mgr, err := manager.New(context.Background(),
		manager.WithBackend(context.Background(), "mem://test"),
		manager.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	router := muxRouter{http.NewServeMux()}
	require.NoError(t, httphandler.RegisterHandlers(mgr, router))
	srv := httptest.NewServer(router)
	c, err := httpclient.New(srv.URL)
	if err != nil {
		srv.Close()
		mgr.Close()
		t.Fatalf("newTestServer: failed to create client: %v", err)
	}
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
	})
	return c, mgr
}

func memFile(name, content string) upload.File {
	return upload.File{
		Name: name,
		Size: int64(len(content)),
		Body: bytes.NewReader([]byte(content)),
	}
}

func readBackend(t *testing.T, mgr *manager.Manager, p string) string {
	t.Helper()
	r, err := mgr.Backend().Read(context.Background(), p)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}
