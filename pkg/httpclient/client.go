package httpclient

import (
	"crypto/tls"
	"net/http"
	"os"
	"strings"

	// Packages
	client "github.com/mutablelogic/go-client"
	upload "github.com/mutablelogic/go-upload"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Client is an upload HTTP client that wraps the base HTTP client
// and provides typed methods for interacting with the upload API.
type Client struct {
	*client.Client
}

var _ upload.Transport = (*Client)(nil)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new upload HTTP client with the given base URL and options.
// The url parameter should point to the upload API endpoint, e.g.
// "http://localhost:8080/api/upload".
func New(url string, opts ...client.ClientOpt) (*Client, error) {
	c := new(Client)
	cl, err := client.New(append(opts, client.OptEndpoint(url))...)
	if err != nil {
		return nil, err
	}
	if isTruthyEnv("UPLOAD_HTTP1") {
		if tr, ok := cl.Client.Transport.(*http.Transport); ok && tr != nil {
			cl.Client.Transport = http1Transport(tr)
		} else {
			cl.Client.Transport = http1Transport(http.DefaultTransport.(*http.Transport))
		}
	}
	c.Client = cl
	return c, nil
}

// http1Transport returns a copy of tr which never negotiates HTTP/2
func http1Transport(tr *http.Transport) *http.Transport {
	tr = tr.Clone()
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return tr
}

func isTruthyEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v != "" && v != "0" && v != "false" && v != "no" && v != "off"
}
