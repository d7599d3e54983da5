package telephony

import (
	"strings"
)

// Action is one step of the call-control instruction list returned from the
// answer webhook. The provider executes them in order.
type Action interface {
	actionName() string
}

type EndpointType string

const EndpointPhone EndpointType = "phone"

type Endpoint struct {
	Type   EndpointType `json:"type"`
	Number string       `json:"number,omitempty"`
}

type Transcription struct {
	Language string   `json:"language"`
	EventURL []string `json:"eventUrl,omitempty"`
}

// RecordAction records the whole conversation, one channel per participant.
type RecordAction struct {
	Action        string         `json:"action"`
	Split         string         `json:"split"`
	Channels      int            `json:"channels"`
	Format        string         `json:"format,omitempty"`
	EventURL      []string       `json:"eventUrl,omitempty"`
	EventMethod   string         `json:"eventMethod,omitempty"`
	Transcription *Transcription `json:"transcription,omitempty"`
}

func (RecordAction) actionName() string { return "record" }

// ConnectAction bridges the call to a PSTN endpoint.
type ConnectAction struct {
	Action   string     `json:"action"`
	From     string     `json:"from,omitempty"`
	Endpoint []Endpoint `json:"endpoint"`
}

func (ConnectAction) actionName() string { return "connect" }

// AnswerRequest is the parsed answer webhook.
type AnswerRequest struct {
	To      string
	From    string
	Context CallContext
}

// AnswerDefaults fill in what the request leaves out.
type AnswerDefaults struct {
	From     string
	Language string
	// BaseURL is the public origin of this service. Callback URLs are left out
	// of the instructions when empty.
	BaseURL string
}

const (
	// minCallerIDDigits rejects SDK identities such as "agent1" as caller ID.
	minCallerIDDigits = 5

	fallbackLanguage       = "en-US"
	recordingCallbackPath  = "/webhooks/voice/recording"
	transcriptCallbackPath = "/webhooks/voice/transcription"
)

// BuildAnswer never fails: a request without a usable destination gets a
// recording-only list.
func BuildAnswer(req AnswerRequest, d AnswerDefaults) []Action {
	lang := strings.TrimSpace(req.Context.TranscriptionLanguage)
	if lang == "" {
		lang = strings.TrimSpace(d.Language)
	}
	if lang == "" {
		lang = fallbackLanguage
	}

	rec := RecordAction{
		Action:        "record",
		Split:         "conversation",
		Channels:      2,
		Format:        "mp3",
		Transcription: &Transcription{Language: lang},
	}
	if base := strings.TrimRight(strings.TrimSpace(d.BaseURL), "/"); base != "" {
		rec.EventURL = []string{base + recordingCallbackPath}
		rec.EventMethod = "POST"
		rec.Transcription.EventURL = []string{base + transcriptCallbackPath}
	}

	actions := []Action{rec}

	to := NormalizeNumber(req.To)
	if to == "" {
		return actions
	}
	return append(actions, ConnectAction{
		Action:   "connect",
		From:     callerID(req.Context.From, req.From, d.From),
		Endpoint: []Endpoint{{Type: EndpointPhone, Number: to}},
	})
}

// callerID returns the first candidate that normalizes to a plausible number.
// The realtime SDK often puts the user identity in from, so a candidate without
// enough digits falls through to the next one.
func callerID(candidates ...string) string {
	for _, c := range candidates {
		if n := NormalizeNumber(c); len(n)-1 >= minCallerIDDigits {
			return n
		}
	}
	return ""
}

// NormalizeNumber reduces s to "+" followed by its digits. Input without any
// digit yields "".
func NormalizeNumber(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	b.WriteByte('+')
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}
