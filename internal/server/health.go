package server

import (
	"encoding/json"
	"net/http"

	"github.com/desertthunder/portalsync/internal/syncer"
)

// HealthHandler reports queue, cache and stream state of engine as JSON.
//
// generations counts the operations started per stream since the process began.
func HealthHandler(engine *syncer.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		q := engine.Queue()
		streams := engine.States()
		generations := make(map[string]uint64, len(streams))
		for id := range streams {
			generations[id] = engine.Fence().Generation(id)
		}
		body := map[string]any{
			"status":      "ok",
			"inFlight":    q.InFlight(),
			"pending":     q.Pending(),
			"limit":       q.Limit(),
			"cacheKeys":   engine.Cache().Keys(),
			"streams":     streams,
			"generations": generations,
			"subtypes": map[string][]string{
				string(engine.Homework.Kind()):  engine.Homework.Subtypes(),
				string(engine.Documents.Kind()): engine.Documents.Subtypes(),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// NewRouter wires the bridge, the health endpoint and the standard middleware.
func NewRouter(bridge *Bridge, engine *syncer.Engine, mw ...Middleware) *BasicRouter {
	r := NewBasicRouter()
	r.Use(mw...)
	r.Handle(http.MethodGet, "/health", HealthHandler(engine))
	r.Handler(bridge)
	return r
}
