package calls

import (
	"bytes"
	"encoding/json"
	"strings"
)

// transcriptSegment covers the two field names providers use for a segment's text.
type transcriptSegment struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
}

func (s transcriptSegment) value() string {
	if t := strings.TrimSpace(s.Text); t != "" {
		return t
	}
	return strings.TrimSpace(s.Transcript)
}

// NormalizeTranscription folds the accepted transcription payload shapes into one
// space-joined string:
//
//	"hello world"
//	{"results":[{"text":"hello"},{"text":"world"}]}
//	[{"transcript":"hello"},{"text":"world"}]
//
// Anything else yields "".
func NormalizeTranscription(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.Join(strings.Fields(s), " ")
	case '{':
		var obj struct {
			Results []transcriptSegment `json:"results"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		return joinSegments(obj.Results)
	case '[':
		var segs []transcriptSegment
		if err := json.Unmarshal(raw, &segs); err != nil {
			return ""
		}
		return joinSegments(segs)
	default:
		return ""
	}
}

func joinSegments(segs []transcriptSegment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if v := s.value(); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
