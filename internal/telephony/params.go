package telephony

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxWebhookBody = 1 << 20

// Params merges query-string and body fields of a provider request. Body
// values win over query values.
type Params map[string]any

// ParseParams accepts JSON or form-encoded bodies. A body that cannot be
// parsed is skipped and reported through err; the query values are still returned.
func ParseParams(r *http.Request) (Params, error) {
	p := Params{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}
	if r.Body == nil || r.Method == http.MethodGet {
		return p, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return p, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return p, nil
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		vals, err := url.ParseQuery(string(raw))
		if err != nil {
			return p, err
		}
		for k, v := range vals {
			if len(v) > 0 {
				p[k] = v[0]
			}
		}
		return p, nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return p, err
	}
	for k, v := range body {
		p[k] = v
	}
	return p, nil
}

// String returns the first non-empty string value among keys. Numbers are formatted.
func (p Params) String(keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Int accepts a JSON number or a numeric string.
func (p Params) Int(key string) *int {
	switch v := p[key].(type) {
	case float64:
		n := int(v)
		return &n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

// Time parses an RFC 3339 value.
func (p Params) Time(key string) *time.Time {
	s := p.String(key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// Raw re-encodes key as JSON so shape-dependent decoders can inspect it. A
// string holding a JSON object or array (the form-encoded delivery of a
// structured field) is returned as that JSON, not as a quoted string.
func (p Params) Raw(key string) json.RawMessage {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if t := strings.TrimSpace(s); t != "" && (t[0] == '{' || t[0] == '[') && json.Valid([]byte(t)) {
			return json.RawMessage(t)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// CallContext is the custom_data blob placed by the softphone and echoed by the provider.
type CallContext struct {
	ContactID             string `json:"contactId"`
	ProjectID             string `json:"projectId"`
	From                  string `json:"from"`
	CorrelationID         string `json:"callRecordId"`
	TranscriptionLanguage string `json:"transcriptionLanguage"`
}

// ParseCallContext accepts the blob as a JSON string or an object. Malformed
// input yields the zero context and ok=false; callers fall back to defaults.
func ParseCallContext(v any) (CallContext, bool) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return CallContext{}, false
	case string:
		if strings.TrimSpace(t) == "" {
			return CallContext{}, false
		}
		raw = []byte(t)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return CallContext{}, false
		}
		raw = b
	default:
		return CallContext{}, false
	}
	var cc CallContext
	if err := json.Unmarshal(raw, &cc); err != nil {
		return CallContext{}, false
	}
	return cc, true
}
