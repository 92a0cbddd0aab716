// Package gcloudtts adapts Google Cloud's Text-to-Speech API to the engine.TTS
// interface, selectable by registering a Model with Engine == "gcloud-tts".
package gcloudtts

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/lmsilo/transcribe-backend/engine"
)

// TTS synthesizes speech via the Google Cloud Text-to-Speech API.
type TTS struct {
	client     *texttospeech.Client
	sampleRate int
}

// New dials the Text-to-Speech API using ambient application-default
// credentials, matching how the rest of the service leaves auth to the
// environment rather than threading API keys through config.
func New(ctx context.Context) (*TTS, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("texttospeech.NewClient: %w", err)
	}
	return &TTS{client: client, sampleRate: 24000}, nil
}

func (t *TTS) Close() error { return t.client.Close() }

func (t *TTS) Synthesize(ctx context.Context, text, voice string, progress func(pct int)) (*engine.SynthesizedAudio, error) {
	if voice == "" {
		voice = "en-US-Standard-C"
	}
	progress(10)

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(t.sampleRate),
		},
	}

	resp, err := t.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("SynthesizeSpeech: %w", err)
	}
	progress(80)

	samples := decodeLinear16(resp.AudioContent)
	progress(100)
	return &engine.SynthesizedAudio{Samples: samples, SampleRate: t.sampleRate}, nil
}

// decodeLinear16 strips the 44-byte canonical WAV header LINEAR16 responses
// carry and converts the remaining little-endian PCM16 payload to float32
// samples in [-1, 1].
func decodeLinear16(wav []byte) []float32 {
	const headerSize = 44
	if len(wav) <= headerSize {
		return nil
	}
	pcm := wav[headerSize:]
	out := make([]float32, len(pcm)/2)
	for i := range out {
		lo := pcm[2*i]
		hi := pcm[2*i+1]
		v := int16(uint16(lo) | uint16(hi)<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}
