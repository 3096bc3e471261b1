package transport

import (
	"net/http"

	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// handleCacheFlush drops every live snapshot and reports how many were
// removed.
func handleCacheFlush(store *shape.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		flushed := store.Flush()
		WriteJSON(w, http.StatusOK, model.OK(map[string]any{"flushed": flushed}))
	}
}

// handleCacheStats reports snapshot store diagnostics.
func handleCacheStats(store *shape.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, model.OK(store.Diagnostics()))
	}
}
