package messages

import (
	"strconv"

	"github.com/twilio/twilio-go/twiml"
)

// VoiceResponse builds a TwiML document with a fixed voice and language.
type VoiceResponse struct {
	Voice    string
	Language string
	verbs    []twiml.Element
}

// NewVoiceResponse starts an empty document.
func NewVoiceResponse(voice, language string) *VoiceResponse {
	return &VoiceResponse{Voice: voice, Language: language}
}

// Say appends spoken text. Empty text is skipped.
func (v *VoiceResponse) Say(text string) *VoiceResponse {
	if text == "" {
		return v
	}
	v.verbs = append(v.verbs, v.say(text))
	return v
}

func (v *VoiceResponse) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Voice: v.Voice, Language: v.Language, Message: text}
}

// Pause appends a pause of the given seconds.
func (v *VoiceResponse) Pause(seconds int) *VoiceResponse {
	v.verbs = append(v.verbs, &twiml.VoicePause{Length: strconv.Itoa(seconds)})
	return v
}

// GatherSpeech appends a speech Gather that asks prompt and posts to action.
func (v *VoiceResponse) GatherSpeech(action, prompt string, timeout, speechTimeout int, hints string) *VoiceResponse {
	g := &twiml.VoiceGather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		Timeout:       strconv.Itoa(timeout),
		SpeechTimeout: strconv.Itoa(speechTimeout),
		Language:      v.Language,
		Hints:         hints,
	}
	if prompt != "" {
		g.InnerElements = []twiml.Element{v.say(prompt)}
	}
	v.verbs = append(v.verbs, g)
	return v
}

// Hangup appends a Hangup.
func (v *VoiceResponse) Hangup() *VoiceResponse {
	v.verbs = append(v.verbs, &twiml.VoiceHangup{})
	return v
}

// Render encodes the document, XML declaration included.
func (v *VoiceResponse) Render() ([]byte, error) {
	doc, err := twiml.Voice(v.verbs)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}
