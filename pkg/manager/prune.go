package manager

import (
	"context"
	"path"
	"strings"
	"time"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Prune ends sessions idle for longer than the session TTL and removes
// staged chunks which belong to no session. It returns the number of
// sessions ended.
func (manager *Manager) Prune(ctx context.Context) (_ int, result error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Prune"))
	defer func() { endFunc(result) }()

	cutoff := time.Now().Add(-manager.ttl)

	// Remove expired sessions
	var expired []string
	manager.mu.Lock()
	for id, s := range manager.sessions {
		if !s.completing && s.writing == 0 && s.modified.Before(cutoff) {
			expired = append(expired, id)
			delete(manager.sessions, id)
		}
	}
	manager.mu.Unlock()
	for _, id := range expired {
		manager.deleteStaging(child, id)
		manager.logger.WithField("upload_id", id).Info("upload expired")
	}

	// Remove orphaned staging directories, such as those left by a restart
	staged, err := manager.backend.List(child, "/"+schema.ChunkPrefix)
	if err != nil {
		return len(expired), err
	}
	orphans := make(map[string]bool)
	for _, file := range staged {
		id := path.Base(path.Dir(file.Path))
		if !strings.HasPrefix(path.Dir(file.Path), chunkDir("")) || file.ModTime.After(cutoff) {
			continue
		}
		manager.mu.Lock()
		_, live := manager.sessions[id]
		manager.mu.Unlock()
		if !live {
			orphans[id] = true
		}
	}
	for id := range orphans {
		manager.deleteStaging(child, id)
	}

	// Return the number of sessions ended
	return len(expired), nil
}

// Run prunes sessions periodically until the context is cancelled
func (manager *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(min(manager.ttl, time.Hour))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := manager.Prune(ctx); err != nil {
				manager.logger.WithError(err).Warn("prune failed")
			} else if n > 0 {
				manager.logger.WithField("sessions", n).Info("pruned sessions")
			}
		}
	}
}
