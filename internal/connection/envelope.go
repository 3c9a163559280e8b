package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 form stamped on outbound envelopes (UTC, milliseconds).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Envelope is the unit exchanged over the Transport:
//
//	{"type": "<string>", "timestamp": "<ISO-8601>", ...payload fields}
//
// Payload fields are kept flat and undecoded; only Type is interpreted by the Manager.
type Envelope struct {
	Type      string
	Timestamp string
	Fields    map[string]json.RawMessage

	// Raw is the frame text for inbound envelopes.
	Raw []byte
}

// LocationPayload is the payload of a "location" envelope.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PhotoCapturePayload is the payload of a "photo_capture" envelope.
// PhotoID is a string or a number.
type PhotoCapturePayload struct {
	PhotoID  any            `json:"photoId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope builds an outbound envelope stamped with now. payload must encode to a
// JSON object (or be nil); its "type" and "timestamp" keys are ignored.
func NewEnvelope(msgType string, payload any, now time.Time) (Envelope, error) {
	fields, err := payloadFields(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      msgType,
		Timestamp: now.UTC().Format(TimestampLayout),
		Fields:    fields,
	}, nil
}

func payloadFields(payload any) (map[string]json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("payload must encode to a JSON object: %w", err)
	}
	delete(fields, "type")
	delete(fields, "timestamp")
	return fields, nil
}

// ParseEnvelope decodes an inbound frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	env.Raw = data
	return env, nil
}

// MarshalJSON encodes the envelope flat.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}

	typ, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	out["type"] = typ

	if e.Timestamp != "" {
		ts, err := json.Marshal(e.Timestamp)
		if err != nil {
			return nil, err
		}
		out["timestamp"] = ts
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat envelope. A non-string timestamp is left in Fields.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("envelope must be a JSON object")
	}

	e.Type = ""
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &e.Type); err != nil {
			return fmt.Errorf("decode type: %w", err)
		}
		delete(fields, "type")
	}

	e.Timestamp = ""
	if raw, ok := fields["timestamp"]; ok {
		if err := json.Unmarshal(raw, &e.Timestamp); err == nil {
			delete(fields, "timestamp")
		}
	}

	e.Fields = fields
	return nil
}

// Field decodes the named payload field into v.
func (e Envelope) Field(name string, v any) error {
	raw, ok := e.Fields[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrFieldMissing)
	}
	return json.Unmarshal(raw, v)
}

// Time parses Timestamp.
func (e Envelope) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}
