package httphandler

import (
	"net/http"
	"strconv"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /uploads/init
// POST starts a chunked upload session.
func UploadInitHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/uploads/init", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				_ = uploadInit(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Post: &openapi.Operation{
				Description: "Start a chunked upload session and return the chunk layout",
			},
		})
}

// Path: /uploads/{id}
// GET returns the state of a session, DELETE aborts it.
func UploadHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/uploads/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = uploadStatus(w, r, mgr)
			case http.MethodDelete:
				_ = uploadAbort(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Get the state of an upload session",
			},
			Delete: &openapi.Operation{
				Description: "Abort an upload session and discard staged chunks",
			},
		})
}

// Path: /uploads/{id}/chunks/{index}
// PUT stages one chunk. The body is the raw chunk bytes.
func UploadChunkHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/uploads/{id}/chunks/{index}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPut:
				_ = uploadChunk(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Put: &openapi.Operation{
				Description: "Send one chunk of an upload (application/octet-stream)",
			},
		})
}

// Path: /uploads/{id}/complete
// POST assembles the staged chunks into the destination file.
func UploadCompleteHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/uploads/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				_ = uploadComplete(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Post: &openapi.Operation{
				Description: "Complete an upload once every chunk has been sent",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func uploadInit(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var req schema.InitUploadRequest
	if err := httprequest.Read(r, &req); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}
	response, err := mgr.InitUpload(r.Context(), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusCreated, httprequest.Indent(r), response)
}

func uploadStatus(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	response, err := mgr.UploadStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func uploadAbort(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	if err := mgr.AbortUpload(r.Context(), r.PathValue("id")); err != nil {
		return httpresponse.Error(w, err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func uploadChunk(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf("invalid chunk index %q", r.PathValue("index")))
	}

	// ContentLength is -1 when the length is unknown
	response, err := mgr.PutChunk(r.Context(), r.PathValue("id"), index, r.Body, r.ContentLength)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func uploadComplete(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	response, err := mgr.CompleteUpload(r.Context(), r.PathValue("id"))
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusCreated, httprequest.Indent(r), response)
}
