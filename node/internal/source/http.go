package source

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/pkg/types"
)

// maxIngestBody bounds one POST body.
const maxIngestBody = 1 << 20

// samplesSchema is the contract for POST /api/v1/samples. Each entry carries
// either a scalar value (run through the input's encoder) or an explicit
// phase; a missing timestamp is stamped on receipt.
const samplesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["samples"],
  "additionalProperties": false,
  "properties": {
    "samples": {
      "type": "array",
      "minItems": 1,
      "maxItems": 1000,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "timestamp": {"type": "number"},
          "value": {"type": "number"},
          "phase": {
            "type": "object",
            "required": ["real", "imag"],
            "additionalProperties": false,
            "properties": {
              "real": {"type": "number"},
              "imag": {"type": "number"}
            }
          }
        },
        "oneOf": [
          {"required": ["value"]},
          {"required": ["phase"]}
        ]
      }
    }
  }
}`

var compiledSamplesSchema = jsonschema.MustCompileString("samples.schema.json", samplesSchema)

type ingestBody struct {
	Samples []struct {
		Timestamp *float64     `json:"timestamp"`
		Value     *float64     `json:"value"`
		Phase     *types.Phase `json:"phase"`
	} `json:"samples"`
}

// HTTP is an input fed by JSON POSTs. It serves as an http.Handler and as
// engine.Input.
type HTTP struct {
	*Channel
	id  string
	enc Encoder
	now func() time.Time

	mu     sync.Mutex
	lastTs float64
}

// NewHTTP builds an ingest input from cfg. size bounds the samples buffered
// between the handler and the engine.
func NewHTTP(cfg config.InputConfig, size int) (*HTTP, error) {
	enc, err := LookupEncoder(cfg.Encoder)
	if err != nil {
		return nil, err
	}
	return &HTTP{Channel: NewChannel(size), id: cfg.ID, enc: enc, now: time.Now}, nil
}

// ServeHTTP accepts a batch of samples and responds 202 with the count.
func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}
	if len(raw) > maxIngestBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}

	samples, err := h.decode(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	for i, s := range samples {
		if err := h.Send(r.Context(), s); err != nil {
			slog.Warn("source: http ingest interrupted", "input", h.id, "accepted", i, "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "accepted": i})
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(samples)})
}

// decode validates raw against the schema and converts it to samples.
func (h *HTTP) decode(raw []byte) ([]types.Sample, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := compiledSamplesSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	var body ingestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Sample, 0, len(body.Samples))
	for _, in := range body.Samples {
		var s types.Sample
		if in.Phase != nil {
			s.Phase = *in.Phase
		} else {
			s.Phase = h.enc(*in.Value)
		}
		if in.Timestamp != nil {
			s.Timestamp = *in.Timestamp
		} else {
			// Unstamped samples in one batch must still advance.
			s.Timestamp = math.Max(types.Seconds(h.now()), math.Nextafter(h.lastTs, math.Inf(1)))
		}
		h.lastTs = math.Max(h.lastTs, s.Timestamp)
		out = append(out, s)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
