// ABOUTME: Response envelope discrimination for the transport engine
// ABOUTME: Resolves legacy and current payload shapes into one canonical form
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PayloadShape identifies which of the known response envelopes a body
// used. The set is closed; anything else is an invalid response format.
type PayloadShape string

const (
	ShapeLegacyArray   PayloadShape = "legacy_array"
	ShapeEnvelopeData  PayloadShape = "envelope_data"
	ShapeEnvelopeItems PayloadShape = "envelope_items"
	ShapeObject        PayloadShape = "object"
)

// Payload is the single decoded shape handed to callers regardless of
// which envelope the server used. List-shaped data lands in Records,
// object-shaped data (single records, token replies) in Object.
type Payload struct {
	Shape   PayloadShape
	Success bool
	Error   string
	Records []any
	Object  map[string]any
}

// decodePayload resolves a response body into a Payload. A nil payload
// with a nil error means "no payload": empty bodies and non-JSON
// content types are explicitly tolerated rather than raised.
func decodePayload(contentType string, body []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if contentType != "" && !strings.Contains(contentType, "application/json") {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []any
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decoding legacy array body: %w", err)
		}
		return &Payload{Shape: ShapeLegacyArray, Success: true, Records: records}, nil
	}

	var envelope map[string]any
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}

	payload := &Payload{Success: true}
	if success, ok := envelope["success"].(bool); ok {
		payload.Success = success
	}
	if errMsg, ok := envelope["error"].(string); ok {
		payload.Error = errMsg
	}

	if data, ok := envelope["data"]; ok {
		payload.Shape = ShapeEnvelopeData
		fillData(payload, data)
		return payload, nil
	}
	if items, ok := envelope["items"]; ok {
		payload.Shape = ShapeEnvelopeItems
		fillData(payload, items)
		return payload, nil
	}

	// A plain object with no recognized envelope key is treated as a
	// single-record payload (token replies, ack bodies).
	payload.Shape = ShapeObject
	payload.Object = envelope
	return payload, nil
}

func fillData(payload *Payload, data any) {
	switch v := data.(type) {
	case []any:
		payload.Records = v
	case map[string]any:
		payload.Object = v
	case nil:
		// success envelope with null data; nothing to carry
	default:
		payload.Object = map[string]any{"value": v}
	}
}
