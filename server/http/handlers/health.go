package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
)

// StateFunc reports the embedding backend state.
type StateFunc func() string

// Health answers 200 as long as the process serves; image similarity is
// optional so its state is informative only.
func Health(embedder StateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]string{"status": "ok"}
		if embedder != nil {
			body["embedder"] = embedder()
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(body)
	}
}
