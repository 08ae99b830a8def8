package eventsourcing_test

import (
	"encoding/json"
	"testing"
	"time"

	es "github.com/zeferini/eventsourcing"
)

func TestCodecRoundTripKeepsKinds(t *testing.T) {
	in := es.Payload{
		"name":    es.String("Ada"),
		"age":     es.Int(36),
		"score":   es.Float(9.75),
		"active":  es.Bool(true),
		"userId":  es.Null(),
		"tags":    es.Array(es.String("a"), es.String("b")),
		"address": es.Object(map[string]es.Value{"city": es.String("London")}),
	}

	data, err := es.DefaultCodec.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := es.DefaultCodec.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !in.Equal(out) {
		t.Fatalf("round trip mismatch:\n in: %s\nout: %v", data, out)
	}
	if !out["userId"].IsNull() {
		t.Errorf("expected null to survive, got %v", out["userId"].Kind())
	}
	if out["address"].Fields()["city"].String() != "London" {
		t.Errorf("nested object lost: %v", out["address"])
	}
}

func TestCodecDecodeEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		wantLen int
	}{
		{"empty", "", false, 0},
		{"null", "null", false, 0},
		{"empty object", "{}", false, 0},
		{"object", `{"a":1,"b":"x"}`, false, 2},
		{"array", `[1,2]`, true, 0},
		{"scalar", `"x"`, true, 0},
		{"invalid", `{"a":`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := es.DefaultCodec.Decode([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p == nil || len(p) != tt.wantLen {
				t.Fatalf("expected %d fields, got %v", tt.wantLen, p)
			}
		})
	}
}

func TestNumbersKeepPrecision(t *testing.T) {
	p, err := es.DecodeString(es.DefaultCodec, `{"big":12345678901234567890}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := p.Text("big"); got != "12345678901234567890" {
		t.Fatalf("expected literal number text, got %q", got)
	}
	s, err := es.EncodeString(es.DefaultCodec, p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if s != `{"big":12345678901234567890}` {
		t.Fatalf("unexpected encoding %s", s)
	}
}

func TestPayloadText(t *testing.T) {
	p := es.NewPayload(map[string]any{
		"name":   "Ada",
		"count":  3,
		"ok":     false,
		"none":   nil,
		"nested": map[string]any{"k": "v"},
	})

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"name", "Ada", true},
		{"count", "3", true},
		{"ok", "false", true},
		{"none", "", false},
		{"nested", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := p.Lookup(tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValueOf(t *testing.T) {
	name := "Grace"
	var missing *string
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.FixedZone("X", 7200))

	tests := []struct {
		name string
		in   any
		want es.Value
	}{
		{"string pointer", &name, es.String("Grace")},
		{"nil string pointer", missing, es.Null()},
		{"time", ts, es.String("2024-01-02T01:04:05.000000006Z")},
		{"json number", json.Number("1.50"), es.Float(1.5)},
		{"slice", []string{"a"}, es.Array(es.String("a"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := es.ValueOf(tt.in); !got.Equal(tt.want) {
				t.Errorf("ValueOf(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValueUnmarshalJSON(t *testing.T) {
	var v es.Value
	if err := json.Unmarshal([]byte(`{"a":[true,null]}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	items := v.Fields()["a"].Items()
	if len(items) != 2 || items[0].Kind() != es.KindBool || !items[1].IsNull() {
		t.Fatalf("unexpected value %v", v)
	}
	if err := json.Unmarshal([]byte(`{`), &v); err == nil {
		t.Fatal("expected error on invalid json")
	}
}
