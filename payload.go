package eventsourcing

// Payload is the free-form body of an event: a string-keyed map of tagged
// values. Readers must go through Text or Lookup rather than asserting on a
// native Go type.
type Payload map[string]Value

// NewPayload converts a map of native values.
func NewPayload(fields map[string]any) Payload {
	p := make(Payload, len(fields))
	for k, v := range fields {
		p[k] = ValueOf(v)
	}
	return p
}

// Text returns the field as a plain string. Missing, null and non-scalar
// fields resolve to "".
func (p Payload) Text(key string) string {
	s, _ := p.Lookup(key)
	return s
}

// Lookup reports the field as a plain string when present and non-null.
func (p Payload) Lookup(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	return v.Text()
}

func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	c := make(Payload, len(p))
	for k, v := range p {
		c[k] = v.clone()
	}
	return c
}

// Map converts the payload into plain Go values.
func (p Payload) Map() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

func (p Payload) Equal(o Payload) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		other, ok := o[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}
