package calls

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTranscription_AllShapes(t *testing.T) {
	shapes := []string{
		`"hello world"`,
		`{"results":[{"text":"hello"},{"text":"world"}]}`,
		`[{"transcript":"hello"},{"text":"world"}]`,
	}
	for _, s := range shapes {
		assert.Equal(t, "hello world", NormalizeTranscription(json.RawMessage(s)), s)
	}
}

func TestNormalizeTranscription_Unusable(t *testing.T) {
	for _, s := range []string{``, `null`, `42`, `{"results":"nope"}`, `[1,2]`, `{"other":[]}`} {
		assert.Equal(t, "", NormalizeTranscription(json.RawMessage(s)), s)
	}
}

func TestNormalizeTranscription_SkipsEmptySegments(t *testing.T) {
	got := NormalizeTranscription(json.RawMessage(`[{"text":" hi "},{"text":""},{"transcript":"there"}]`))
	assert.Equal(t, "hi there", got)
}
