package eventsourcing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Codec turns payloads into the text stores persist and back.
type Codec interface {
	Encode(p Payload) ([]byte, error)
	Decode(data []byte) (Payload, error)
}

// JSONCodec stores payloads as JSON objects.
type JSONCodec struct{}

var DefaultCodec Codec = JSONCodec{}

func (JSONCodec) Encode(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]Value(p))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// Decode never returns a nil payload: empty input and a JSON null both
// decode to an empty map.
func (JSONCodec) Decode(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Payload{}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode payload: invalid json")
	}
	root := gjson.ParseBytes(data)
	switch {
	case root.Type == gjson.Null:
		return Payload{}, nil
	case !root.IsObject():
		return nil, fmt.Errorf("decode payload: expected object, got %s", root.Type)
	}
	p := Payload{}
	root.ForEach(func(key, item gjson.Result) bool {
		p[key.String()] = fromResult(item)
		return true
	})
	return p, nil
}

// EncodeString and DecodeString are conveniences for text columns.
func EncodeString(c Codec, p Payload) (string, error) {
	b, err := c.Encode(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeString(c Codec, s string) (Payload, error) {
	return c.Decode([]byte(s))
}
