// Package remotebuild is the HTTP/3 compile-as-a-service front end of
// the DOMAIN STACK: a thin network boundary around internal/finalize,
// modeled on internal/runtime/netstack/http3.go and the JSON-over-HTTP
// handler idiom of internal/runtime/debug_http.go. This is §1's "host
// driver" promoted to a real network boundary.
package remotebuild

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/0o001/visa-finalizer/internal/config"
	"github.com/0o001/visa-finalizer/internal/finalize"
	"github.com/0o001/visa-finalizer/internal/jitmeta"
)

// CompileResponse is the wire shape of a successful /compile call.
type CompileResponse struct {
	Binary   []byte                     `json:"binary"`
	Meta     map[string]*jitmeta.Info   `json:"meta"`
	Messages []string                   `json:"messages"`
}

// ErrorResponse is the wire shape of a failed /compile call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves POST /compile: the request body is raw vISA
// byte-code, the X-Build-Options request header (if present) carries a
// JSON-encoded config.BuildOptions override, and the response is a
// CompileResponse.
type Handler struct {
	Options config.BuildOptions
	Encoder finalize.InstructionEncoder
	Emitter finalize.BinaryEmitter
	Cache   *ResultCache
}

// NewHandler builds a Handler serving the given default options; a
// per-request X-Build-Options header, if present, overrides them
// wholesale. Repeated requests for the same byte-code and options are
// served from an in-process ResultCache instead of re-running the
// allocator.
func NewHandler(opts config.BuildOptions, encoder finalize.InstructionEncoder, emitter finalize.BinaryEmitter) *Handler {
	return &Handler{Options: opts, Encoder: encoder, Emitter: emitter, Cache: NewResultCache(0)}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/compile" {
		http.NotFound(w, r)

		return
	}

	opts := h.Options

	if raw := r.Header.Get("X-Build-Options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			writeError(w, http.StatusBadRequest, err)

			return
		}
	}

	bc, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	key := NewCacheKey(bc, opts)

	if h.Cache != nil {
		if cached, ok := h.Cache.Get(key); ok {
			writeResponse(w, cached)

			return
		}
	}

	result, err := finalize.Run(bc, opts, h.Encoder, h.Emitter)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)

		return
	}

	resp := &CompileResponse{Binary: result.Binary, Messages: result.Messages, Meta: result.Meta}

	if h.Cache != nil {
		h.Cache.Put(key, resp)
	}

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *CompileResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(ErrorResponse{Error: err.Error()})
}
