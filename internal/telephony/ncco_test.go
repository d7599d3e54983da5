package telephony

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAnswer_RecordThenConnect(t *testing.T) {
	cc, ok := ParseCallContext(`{"transcriptionLanguage":"en-US"}`)
	require.True(t, ok)

	actions := BuildAnswer(AnswerRequest{To: "+31 6 12 34 56 78", From: "+3170000000", Context: cc}, AnswerDefaults{})
	require.Len(t, actions, 2)

	rec, ok := actions[0].(RecordAction)
	require.True(t, ok)
	assert.Equal(t, "conversation", rec.Split)
	assert.Equal(t, 2, rec.Channels)
	require.NotNil(t, rec.Transcription)
	assert.Equal(t, "en-US", rec.Transcription.Language)

	conn, ok := actions[1].(ConnectAction)
	require.True(t, ok)
	assert.Equal(t, "+3170000000", conn.From)
	require.Len(t, conn.Endpoint, 1)
	assert.Equal(t, "+31612345678", conn.Endpoint[0].Number)
	assert.Equal(t, EndpointPhone, conn.Endpoint[0].Type)
}

func TestBuildAnswer_NoDestinationIsRecordingOnly(t *testing.T) {
	for _, to := range []string{"", "   ", "anonymous"} {
		actions := BuildAnswer(AnswerRequest{To: to}, AnswerDefaults{})
		require.Len(t, actions, 1, to)
		assert.Equal(t, "record", actions[0].actionName())
	}
}

func TestBuildAnswer_Defaults(t *testing.T) {
	actions := BuildAnswer(AnswerRequest{To: "0612345678"}, AnswerDefaults{
		From: "+3170000000", Language: "nl-NL", BaseURL: "https://crm.example.com/",
	})
	require.Len(t, actions, 2)
	rec := actions[0].(RecordAction)
	assert.Equal(t, "nl-NL", rec.Transcription.Language)
	assert.Equal(t, []string{"https://crm.example.com/webhooks/voice/recording"}, rec.EventURL)
	assert.Equal(t, []string{"https://crm.example.com/webhooks/voice/transcription"}, rec.Transcription.EventURL)
	assert.Equal(t, "+3170000000", actions[1].(ConnectAction).From)

	actions = BuildAnswer(AnswerRequest{To: "+1"}, AnswerDefaults{})
	assert.Equal(t, fallbackLanguage, actions[0].(RecordAction).Transcription.Language)
	assert.Empty(t, actions[0].(RecordAction).EventURL)
}

func TestBuildAnswer_CallerIDFallsBackToDefault(t *testing.T) {
	defaults := AnswerDefaults{From: "+3170000000"}
	cases := []struct {
		name    string
		ctxFrom string
		from    string
		want    string
	}{
		{name: "identity without digits", from: "agent-jane", want: "+3170000000"},
		{name: "identity with a digit", from: "agent1", want: "+3170000000"},
		{name: "empty", want: "+3170000000"},
		{name: "request number", from: "+44 20 7946 0000", want: "+442079460000"},
		{name: "context wins", ctxFrom: "+15550100000", from: "+442079460000", want: "+15550100000"},
		{name: "bad context, good request", ctxFrom: "jane", from: "+442079460000", want: "+442079460000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actions := BuildAnswer(AnswerRequest{
				To:      "+31612345678",
				From:    tc.from,
				Context: CallContext{From: tc.ctxFrom},
			}, defaults)
			require.Len(t, actions, 2)
			assert.Equal(t, tc.want, actions[1].(ConnectAction).From)
		})
	}

	actions := BuildAnswer(AnswerRequest{To: "+31612345678", From: "agent1"}, AnswerDefaults{})
	require.Len(t, actions, 2)
	assert.Empty(t, actions[1].(ConnectAction).From)
}

func TestBuildAnswer_JSONShape(t *testing.T) {
	b, err := json.Marshal(BuildAnswer(AnswerRequest{To: "+1 (555) 010-9999", From: "+15550100000"}, AnswerDefaults{}))
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "record", got[0]["action"])
	assert.Equal(t, "connect", got[1]["action"])
	endpoint := got[1]["endpoint"].([]any)[0].(map[string]any)
	assert.Equal(t, "+15550109999", endpoint["number"])
}

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		"+31612345678":      "+31612345678",
		"+31 6 12 34 56 78": "+31612345678",
		"(0031) 6-1234":     "+003161234",
		"tel:+1-555-0100":   "+15550100",
		"":                  "",
		"+":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeNumber(in), in)
	}
}
