package manager

import (
	"context"
	"fmt"
	"path"
	"strings"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// maxRename bounds the search for a free name under the rename policy
const maxRename = 1000

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// targetPath joins a destination directory and a relative file name. Names
// which escape the destination or address the staging area are rejected.
func targetPath(destination, name string) (string, error) {
	if name == "" {
		return "", httpresponse.ErrBadRequest.With("missing file name")
	}
	for _, segment := range strings.Split(strings.ReplaceAll(name, "\\", "/"), "/") {
		if segment == ".." {
			return "", httpresponse.ErrBadRequest.Withf("invalid file name %q", name)
		}
	}
	target := path.Clean("/" + destination + "/" + name)
	if target == path.Clean("/"+destination) {
		return "", httpresponse.ErrBadRequest.Withf("invalid file name %q", name)
	}
	if isStaging(target) {
		return "", httpresponse.ErrBadRequest.Withf("%q is reserved", schema.ChunkPrefix)
	}
	return target, nil
}

// isStaging returns true if a path is inside the chunk staging area
func isStaging(p string) bool {
	first, _, _ := strings.Cut(strings.TrimPrefix(path.Clean("/"+p), "/"), "/")
	return first == schema.ChunkPrefix
}

// chunkDir returns the staging directory for an upload session
func chunkDir(uploadID string) string {
	return "/" + schema.ChunkPrefix + "/" + uploadID
}

// chunkPath returns the staging path for one chunk
func chunkPath(uploadID string, index int) string {
	return fmt.Sprintf("%s/%d", chunkDir(uploadID), index)
}

// renamed returns "name (n).ext" in the same directory as p
func renamed(p string, n int) string {
	dir, base := path.Split(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}
	return path.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
}

// checkConflict returns a conflict error if the target exists and the policy
// does not allow it to be replaced or renamed
func (manager *Manager) checkConflict(ctx context.Context, target string, policy schema.ConflictPolicy) error {
	if policy == schema.ConflictOverwrite || policy == schema.ConflictRename {
		return nil
	}
	if exists, err := manager.exists(ctx, target); err != nil {
		return err
	} else if exists {
		return httpresponse.ErrConflict.Withf("%q already exists", target)
	}
	return nil
}

// reserve resolves the final path for target under a conflict policy and
// holds it for owner until release is called, so that two commits never
// pick the same name
func (manager *Manager) reserve(ctx context.Context, target string, policy schema.ConflictPolicy, owner string) (string, error) {
	candidate := target
	for n := 1; ; n++ {
		exists, err := manager.exists(ctx, candidate)
		if err != nil {
			return "", err
		}

		manager.mu.Lock()
		_, reserved := manager.committing[candidate]
		free := !reserved && (!exists || policy == schema.ConflictOverwrite)
		if free {
			manager.committing[candidate] = owner
		}
		manager.mu.Unlock()

		// A writer may have committed the name between the check and the
		// reservation
		if free && !exists && policy != schema.ConflictOverwrite {
			if exists, err = manager.exists(ctx, candidate); err != nil || exists {
				manager.release(candidate)
				if err != nil {
					return "", err
				}
				free = false
			}
		}
		if free {
			return candidate, nil
		}

		if policy != schema.ConflictRename {
			return "", httpresponse.ErrConflict.Withf("%q already exists", target)
		} else if n > maxRename {
			return "", httpresponse.ErrConflict.Withf("no free name for %q", target)
		}
		candidate = renamed(target, n)
	}
}

func (manager *Manager) release(p string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	delete(manager.committing, p)
}

func (manager *Manager) exists(ctx context.Context, p string) (bool, error) {
	return manager.backend.Exists(ctx, p)
}
