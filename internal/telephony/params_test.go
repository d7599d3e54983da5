package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams_QueryOnly(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/answer?to=%2B31612345678&from=%2B3170000000", nil)
	p, err := ParseParams(r)
	require.NoError(t, err)
	assert.Equal(t, "+31612345678", p.String("to"))
	assert.Equal(t, "+3170000000", p.String("from"))
}

func TestParseParams_BodyWinsOverQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/answer?to=%2B1&from=%2B2", strings.NewReader(`{"to":"+3","duration":"12"}`))
	r.Header.Set("Content-Type", "application/json")
	p, err := ParseParams(r)
	require.NoError(t, err)
	assert.Equal(t, "+3", p.String("to"))
	assert.Equal(t, "+2", p.String("from"))
	require.NotNil(t, p.Int("duration"))
	assert.Equal(t, 12, *p.Int("duration"))
}

func TestParseParams_Form(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/event", strings.NewReader("uuid=leg-1&status=ringing"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p, err := ParseParams(r)
	require.NoError(t, err)
	assert.Equal(t, "leg-1", p.String("uuid"))
	assert.Equal(t, "ringing", p.String("status"))
}

func TestParseParams_MalformedBodyKeepsQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/answer?to=%2B1", strings.NewReader(`{not json`))
	r.Header.Set("Content-Type", "application/json")
	p, err := ParseParams(r)
	assert.Error(t, err)
	assert.Equal(t, "+1", p.String("to"))
}

func TestParseCallContext_Shapes(t *testing.T) {
	cc, ok := ParseCallContext(`{"transcriptionLanguage":"de-DE","callRecordId":"call-1"}`)
	require.True(t, ok)
	assert.Equal(t, "de-DE", cc.TranscriptionLanguage)
	assert.Equal(t, "call-1", cc.CorrelationID)

	cc, ok = ParseCallContext(map[string]any{"from": "+3170000000"})
	require.True(t, ok)
	assert.Equal(t, "+3170000000", cc.From)

	for _, bad := range []any{nil, "", "{", `"just a string"`, 42.0, `{"transcriptionLanguage":5}`} {
		_, ok := ParseCallContext(bad)
		assert.False(t, ok, "%v", bad)
	}
}

func TestParams_RawKeepsEmbeddedJSON(t *testing.T) {
	p := Params{
		"obj":    ` {"results":[{"text":"a"}]}`,
		"list":   `[{"text":"a"}]`,
		"plain":  "hello",
		"broken": "{not json",
	}
	assert.JSONEq(t, `{"results":[{"text":"a"}]}`, string(p.Raw("obj")))
	assert.JSONEq(t, `[{"text":"a"}]`, string(p.Raw("list")))
	assert.Equal(t, `"hello"`, string(p.Raw("plain")))
	assert.Equal(t, `"{not json"`, string(p.Raw("broken")))
	assert.Nil(t, p.Raw("missing"))
}
