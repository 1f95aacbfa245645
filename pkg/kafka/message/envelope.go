// Package message defines the envelope wrapped around every payload
// exchanged over Kafka.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Payload types.
const (
	TypeBlock  = "streamline.block"
	TypeOutput = "streamline.output"

	CurrentVersion = 1
)

var (
	ErrUnexpectedType     = errors.New("unexpected envelope type")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
	ErrEmptyData          = errors.New("envelope has no data")
)

type Envelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	ID      string          `json:"id,omitempty"`
	TS      string          `json:"ts,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Open decodes an envelope without looking at its payload.
func Open(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// OpenAs decodes an envelope and checks that it carries msgType at a
// supported version.
func OpenAs(data []byte, msgType string) (*Envelope, error) {
	env, err := Open(data)
	if err != nil {
		return nil, err
	}
	if env.Type != msgType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrUnexpectedType, env.Type, msgType)
	}
	if env.Version < 1 || env.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ErrEmptyData
	}
	return env, nil
}

// New wraps data at the current version, stamped with ts in RFC 3339.
func New(msgType, id string, ts time.Time, data json.RawMessage) *Envelope {
	return &Envelope{
		Type:    msgType,
		Version: CurrentVersion,
		ID:      id,
		TS:      ts.UTC().Format(time.RFC3339Nano),
		Data:    data,
	}
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
