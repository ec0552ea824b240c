package runtime

import (
	"net/http"
	"strings"

	"github.com/glasswing/glasswing/internal/runtime/genstub"
	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
)

// startDevToolsServer mounts the development endpoints when enabled: the
// current schema, per-binding call statistics, and the generated JavaScript
// stubs. Each request reads a fresh snapshot, so the endpoints track bindings
// added before Start without restarts.
func (b *Bridge) startDevToolsServer() {
	if !b.Conf.DevToolsEnabled {
		return
	}

	port := b.Conf.GetDevToolsPort()
	b.RegisterHTTPHandler(port, "/api/schema", http.HandlerFunc(b.handleGetSchema))
	b.RegisterHTTPHandler(port, "/api/bindings", http.HandlerFunc(b.handleGetBindings))
	b.RegisterHTTPHandler(port, "/api/stubs", http.HandlerFunc(b.handleGetStubs))
}

func (b *Bridge) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	if b.applyCORS(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, b.Schema()); err != nil {
		b.Logger.Error("Failed to encode schema", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (b *Bridge) handleGetBindings(w http.ResponseWriter, r *http.Request) {
	if b.applyCORS(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, b.Bindings()); err != nil {
		b.Logger.Error("Failed to encode bindings", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (b *Bridge) handleGetStubs(w http.ResponseWriter, r *http.Request) {
	if b.applyCORS(w, r) {
		return
	}
	source, err := genstub.Generate(b.Schema())
	if err != nil {
		b.Logger.Error("Failed to generate stubs", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	if _, err := w.Write([]byte(source)); err != nil {
		b.Logger.Error("Failed to write stubs", err, loggingpkg.LogFields{"bytes": len(source)})
	}
}

// applyCORS sets CORS headers based on configuration and reports whether the
// request was a preflight that has been fully handled.
func (b *Bridge) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	if len(b.Conf.DevToolsCORSAllowedOrigins) > 0 {
		origin := b.getAllowedCORSOrigin(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (b *Bridge) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range b.Conf.DevToolsCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
