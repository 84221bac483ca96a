package httphandler

import (
	"net/http"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// filesUploadForm is the multipart form for a single-shot upload. Each part
// in files carries its path relative to the destination.
type filesUploadForm struct {
	Path           string       `json:"path"`
	ConflictPolicy string       `json:"conflict_policy,omitempty"`
	Files          []types.File `json:"files"`
}

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /files/upload
// POST stores one or more small files using multipart/form-data (fields
// "path", "conflict_policy" and "files", repeatable).
func FilesUploadHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/files/upload", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				_ = filesUpload(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Post: &openapi.Operation{
				Description: "Upload small files in a single request using multipart/form-data",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func filesUpload(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var form filesUploadForm
	if err := httprequest.Read(r, &form); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}
	defer func() {
		for _, f := range form.Files {
			f.Body.Close()
		}
	}()
	if len(form.Files) == 0 {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(`missing or unreadable "files" form field`))
	}
	policy, err := schema.ParseConflictPolicy(form.ConflictPolicy)
	if err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	// f.Path is sanitised by the form reader: leading slashes stripped and
	// traversal rejected
	files := make([]manager.File, 0, len(form.Files))
	for _, f := range form.Files {
		file := manager.File{
			Name:        f.Path,
			Body:        f.Body,
			ContentType: f.ContentType,
		}
		if file.ContentType == types.ContentTypeBinary {
			file.ContentType = ""
		}
		if lm := f.Header.Get(types.ContentModifiedHeader); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				file.ModTime = t
			}
		}
		files = append(files, file)
	}

	response, err := mgr.CreateFiles(r.Context(), types.NormalisePath(form.Path), policy, files)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}
