package mapping

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeObservations decodes a topic payload carrying obstacles of one kind:
// - a JSON object (one obstacle)
// - a JSON array (every obstacle detected in one frame)
// - either of the above, zlib-compressed
//
// Line payloads with a "segments" key decode as Spline, anything else as
// LineObstacle.
func DecodeObservations(kind ObstacleKind, data []byte) ([]Obstacle, error) {
	jsonBytes, err := jsonPayload(data)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	switch jsonBytes[0] {
	case '[':
		if err := json.Unmarshal(jsonBytes, &raws); err != nil {
			return nil, fmt.Errorf("parsing observation array: %w", err)
		}
	case '{':
		raws = []json.RawMessage{jsonBytes}
	default:
		return nil, fmt.Errorf("observation payload is neither a JSON object nor an array")
	}

	obstacles := make([]Obstacle, 0, len(raws))
	for i, raw := range raws {
		o, err := decodeObstacle(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		obstacles = append(obstacles, o)
	}
	return obstacles, nil
}

// envelope is the self-describing form used by replay logs and HTTP posts
type envelope struct {
	Kind string `json:"kind"`
}

// DecodeEnvelope decodes one self-describing observation. The kind field is
// "cone", "line" (y = f(x) form) or "spline".
func DecodeEnvelope(data []byte) (Obstacle, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing observation: %w", err)
	}
	switch env.Kind {
	case "cone":
		return decodeObstacle(KindCone, data)
	case "line":
		var l LineObstacle
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("parsing line: %w", err)
		}
		return l, nil
	case "spline":
		var s Spline
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing spline: %w", err)
		}
		return s, nil
	case "":
		return nil, fmt.Errorf("observation has no kind")
	default:
		return nil, fmt.Errorf("unknown observation kind %q", env.Kind)
	}
}

// EncodeEnvelope is the inverse of DecodeEnvelope
func EncodeEnvelope(o Obstacle) ([]byte, error) {
	switch ob := o.(type) {
	case ConeObstacle:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			ConeObstacle
		}{"cone", ob})
	case LineObstacle:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			LineObstacle
		}{"line", ob})
	case Spline:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			Spline
		}{"spline", ob})
	default:
		return nil, fmt.Errorf("unsupported obstacle type %T", o)
	}
}

func decodeObstacle(kind ObstacleKind, raw []byte) (Obstacle, error) {
	switch kind {
	case KindCone:
		var c ConeObstacle
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("parsing cone: %w", err)
		}
		return c, nil
	case KindLine:
		var shape struct {
			Segments json.RawMessage `json:"segments"`
		}
		if err := json.Unmarshal(raw, &shape); err != nil {
			return nil, fmt.Errorf("parsing line: %w", err)
		}
		if shape.Segments != nil {
			var s Spline
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("parsing spline: %w", err)
			}
			return s, nil
		}
		var l LineObstacle
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("parsing line: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown obstacle kind %q", kind)
	}
}

// jsonPayload returns raw JSON, inflating zlib-compressed payloads
func jsonPayload(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	if data[0] == '{' || data[0] == '[' {
		return data, nil
	}
	inflated, err := inflateZlib(data)
	if err != nil {
		return nil, fmt.Errorf("unknown format: not JSON or zlib-compressed JSON")
	}
	inflated = bytes.TrimSpace(inflated)
	if len(inflated) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}
	return inflated, nil
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
