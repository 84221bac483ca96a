package httpclient

import (
	"io"
	"net/http"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// chunkPayload implements client.Payload for PUT requests with a raw body.
type chunkPayload struct {
	body io.Reader
}

var _ client.Payload = (*chunkPayload)(nil)

///////////////////////////////////////////////////////////////////////////////
// INTERFACE IMPLEMENTATION

func (p *chunkPayload) Method() string {
	return http.MethodPut
}

func (p *chunkPayload) Accept() string {
	return types.ContentTypeJSON
}

func (p *chunkPayload) Type() string {
	return types.ContentTypeBinary
}

func (p *chunkPayload) Read(b []byte) (int, error) {
	return p.body.Read(b)
}
