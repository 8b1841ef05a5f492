// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package ssml builds the single SSML document sent as the body of the
// "ssml" wire frame: voice selection, prosody parameters, and the escaped
// synthesis text, the way normalizer.go's WrapWithSSML/AddProsody helpers
// assemble Azure SSML, generalized to Edge TTS's voice-name convention.
package ssml

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rapidaai/edgetts/internal/edgeerr"
)

const voiceNamePrefix = "Microsoft Server Speech Text to Speech Voice ("

var (
	langTagRe   = regexp.MustCompile(`^[A-Za-z]{2,3}$`)
	subtagRe    = regexp.MustCompile(`^[A-Za-z0-9]{2,8}$`)
	voiceNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	entityRe    = regexp.MustCompile(`^(amp|lt|gt|quot|apos|#[0-9]+|#x[0-9A-Fa-f]+);`)
)

// Config bounds the assembled document, mirroring MAX_TEXT_CHARS and
// MAX_SSML_BYTES from spec.md §6.
type Config struct {
	MaxTextChars int
	MaxSSMLBytes int
}

// DefaultConfig returns the spec's defaults: 4,000 characters of input
// text, 65,536 bytes of assembled SSML.
func DefaultConfig() Config {
	return Config{MaxTextChars: 4000, MaxSSMLBytes: 65536}
}

// Options carries the per-request speech parameters the builder maps into
// SSML attributes.
type Options struct {
	Voice    string
	Language string
	Rate     *float64
	Pitch    *float64
	Volume   *float64
}

// Build assembles the SSML document for one synthesis request.
func Build(text string, opts Options, cfg Config) (string, error) {
	if text == "" {
		return "", edgeerr.New(edgeerr.KindConfigEmptyText, "text is empty")
	}
	if len([]rune(text)) > cfg.MaxTextChars {
		return "", edgeerr.New(edgeerr.KindConfigTextTooLong,
			fmt.Sprintf("text exceeds %d characters", cfg.MaxTextChars))
	}

	voiceName, locale, err := TransformVoiceName(opts.Voice)
	if err != nil {
		return "", err
	}

	language := opts.Language
	if language == "" {
		language = locale
	}
	if language == "" {
		language = "en-US"
	}

	rate := MapParam(derefOr(opts.Rate, 1.0))
	pitch := MapParam(derefOr(opts.Pitch, 1.0))
	volume := MapParam(derefOr(opts.Volume, 1.0))

	doc := fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="%s"><voice name="%s"><prosody rate="%s" pitch="%s" volume="%s">%s</prosody></voice></speak>`,
		language, voiceName, rate, pitch, volume, EscapeXML(text),
	)

	if len(doc) > cfg.MaxSSMLBytes {
		return "", edgeerr.New(edgeerr.KindConfigTextTooLong,
			fmt.Sprintf("assembled SSML exceeds %d bytes", cfg.MaxSSMLBytes))
	}
	return doc, nil
}

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// MapParam clamps x to [0.0, 2.0] and maps it to Edge TTS's signed-percent
// prosody attribute syntax.
func MapParam(x float64) string {
	if x < 0 {
		x = 0
	}
	if x > 2 {
		x = 2
	}
	pct := int(math.Round((x - 1.0) * 100))
	if pct >= 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}

// TransformVoiceName converts a short voice identifier such as
// "en-US-AriaNeural" into the Microsoft Server Speech voice name Edge TTS
// expects, returning the locale tag alongside it. An identifier already
// bearing the Microsoft prefix passes through unchanged (with no locale
// extracted, since it's already fully formed).
func TransformVoiceName(voice string) (fullName string, locale string, err error) {
	if voice == "" {
		return "", "", edgeerr.New(edgeerr.KindConfigInvalidVoice, "voice is empty")
	}
	if strings.HasPrefix(voice, voiceNamePrefix) {
		return voice, "", nil
	}

	parts := strings.Split(voice, "-")
	if len(parts) < 3 {
		return "", "", edgeerr.New(edgeerr.KindConfigInvalidVoice, fmt.Sprintf("malformed voice identifier %q", voice))
	}

	lang := parts[0]
	name := parts[len(parts)-1]
	localeParts := parts[:len(parts)-1]

	if !langTagRe.MatchString(lang) {
		return "", "", edgeerr.New(edgeerr.KindConfigInvalidVoice, fmt.Sprintf("malformed language tag %q", lang))
	}
	for _, sub := range localeParts[1:] {
		if !subtagRe.MatchString(sub) {
			return "", "", edgeerr.New(edgeerr.KindConfigInvalidVoice, fmt.Sprintf("malformed locale subtag %q", sub))
		}
	}
	if !voiceNameRe.MatchString(name) {
		return "", "", edgeerr.New(edgeerr.KindConfigInvalidVoice, fmt.Sprintf("malformed voice name %q", name))
	}

	locale = strings.Join(localeParts, "-")
	fullName = fmt.Sprintf("%s%s, %s)", voiceNamePrefix, locale, name)
	return fullName, locale, nil
}

// EscapeXML replaces the five XML special characters with their entity
// forms, skipping a '&' that already begins a recognized entity reference
// so that escaping already-escaped text is a no-op.
func EscapeXML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '&':
			if entityRe.MatchString(s[i+1:]) {
				b.WriteByte('&')
				continue
			}
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
