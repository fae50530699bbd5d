package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/config"
)

// handleGetConfig reports the link's effective configuration.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.group.Config())
}

// handleStats reports the aggregated transfer metrics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetSnapshot())
}

// handlePatchConfig applies a partial link reconfiguration. Only the
// fields present in the body change; an invalid value rejects the whole
// patch and leaves the link untouched.
func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if !gjson.ValidBytes(body) {
		http.Error(w, "body is not valid JSON", http.StatusBadRequest)
		return
	}

	var opts []bandwidth.Option

	if v := gjson.GetBytes(body, "bytesPerSecond"); v.Exists() {
		n, err := sizeValue(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("bytesPerSecond: %v", err), http.StatusBadRequest)
			return
		}
		opts = append(opts, bandwidth.WithRate(n))
	}
	if v := gjson.GetBytes(body, "resolution"); v.Exists() {
		opts = append(opts, bandwidth.WithResolution(int(v.Int())))
	}
	if v := gjson.GetBytes(body, "highWater"); v.Exists() {
		n, err := sizeValue(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("highWater: %v", err), http.StatusBadRequest)
			return
		}
		opts = append(opts, bandwidth.WithHighWater(int(n)))
	}

	if len(opts) == 0 {
		http.Error(w, "no recognized fields in body", http.StatusBadRequest)
		return
	}

	if err := s.group.Configure(opts...); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := s.group.Config()
	log.Printf("relay: link reconfigured: rate=%s resolution=%d highWater=%s",
		config.ByteSize(cfg.BytesPerSecond), cfg.Resolution, config.ByteSize(cfg.HighWater))
	writeJSON(w, http.StatusOK, cfg)
}

// sizeValue reads a byte count that may arrive as a JSON number or a
// humanized size string ("1 MiB", "unlimited").
func sizeValue(v gjson.Result) (int64, error) {
	switch v.Type {
	case gjson.String:
		return config.ParseByteSize(v.String())
	case gjson.Number:
		return v.Int(), nil
	default:
		return 0, fmt.Errorf("expected a number or size string, got %s", v.Type)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("relay: encoding response: %v", err)
	}
}
