// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package codec implements the Edge TTS wire framing: line-based header
// blocks for text frames, and a length-prefixed header block for binary
// frames. It does no I/O — the connection package owns the socket and
// hands raw frame bytes through these functions.
package codec

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/rapidaai/edgetts/internal/edgeerr"
)

const headerBodySeparator = "\r\n\r\n"

// Header is a single ordered (name, value) pair. Outbound frames preserve
// the order headers are given in; inbound frames are parsed into an
// unordered map.
type Header struct {
	Name  string
	Value string
}

// Frame is a decoded text or binary message.
type Frame struct {
	Headers map[string]string
	Body    []byte
}

// HeaderValue looks up a header by name, case-insensitively. Edge TTS
// guarantees canonical casing on the wire; the case-insensitive compare
// exists because X-RequestId specifically must tolerate mixed case.
func HeaderValue(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Path returns the "Path" header, or "" if absent.
func Path(headers map[string]string) string {
	v, _ := HeaderValue(headers, "Path")
	return v
}

// RequestId returns the "X-RequestId" header, or "" if absent.
func RequestId(headers map[string]string) string {
	v, _ := HeaderValue(headers, "X-RequestId")
	return v
}

// Timestamp formats t as RFC 3339 with a 6-digit fractional-second slot,
// populated with millisecond precision padded to microseconds (Edge TTS
// accepts but does not require true microsecond precision).
func Timestamp(t time.Time) string {
	t = t.UTC()
	ms := t.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf("%s.%06dZ", t.Format("2006-01-02T15:04:05"), ms*1000)
}

// EncodeTextFrame renders an ordered header list plus body into the wire
// format: "Name:Value\r\n"... "\r\n" body.
func EncodeTextFrame(headers []Header, body string) []byte {
	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h.Name)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// EncodeSpeechConfig builds the outbound speech.config control frame.
func EncodeSpeechConfig(requestId string, timestamp time.Time) []byte {
	body := `{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":false,"wordBoundaryEnabled":true},` +
		`"outputFormat":"audio-24khz-48kbitrate-mono-mp3"}}}}`
	return EncodeTextFrame([]Header{
		{"X-RequestId", requestId},
		{"X-Timestamp", Timestamp(timestamp)},
		{"Content-Type", "application/json; charset=utf-8"},
		{"Path", "speech.config"},
	}, body)
}

// EncodeSSML builds the outbound ssml frame carrying the synthesis request.
func EncodeSSML(requestId string, timestamp time.Time, ssml string) []byte {
	return EncodeTextFrame([]Header{
		{"X-RequestId", requestId},
		{"X-Timestamp", Timestamp(timestamp)},
		{"Content-Type", "application/ssml+xml"},
		{"Path", "ssml"},
	}, ssml)
}

// EncodeBinaryFrame builds an outbound-shaped binary audio frame: a
// big-endian u16 header length, the header block, then payload. Edge TTS
// never receives binary frames from the client; this exists so tests can
// construct wire-accurate server responses without duplicating the format.
func EncodeBinaryFrame(requestId string, timestamp time.Time, payload []byte) []byte {
	header := EncodeTextFrame([]Header{
		{"X-RequestId", requestId},
		{"X-Timestamp", Timestamp(timestamp)},
		{"Path", "audio"},
	}, "")

	var buf []byte
	lenPrefix := make([]byte, 2)
	binary.BigEndian.PutUint16(lenPrefix, uint16(len(header)))
	buf = append(buf, lenPrefix...)
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return buf
}

// parseHeaderBlock splits a header block (lines of "Name:Value" or
// "Name: Value", joined by "\r\n") into a map. Unknown/blank lines are
// ignored.
func parseHeaderBlock(block []byte) map[string]string {
	headers := make(map[string]string)
	lines := strings.Split(string(block), "\r\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		headers[name] = value
	}
	return headers
}

// DecodeText decodes an inbound (or round-tripped outbound) text frame:
// a header block, a blank-line separator, then the body. A missing
// separator is a hard Protocol.MalformedText error.
func DecodeText(data []byte) (*Frame, error) {
	idx := strings.Index(string(data), headerBodySeparator)
	if idx < 0 {
		return nil, edgeerr.New(edgeerr.KindProtocolMalformedText, "missing header/body separator")
	}
	headers := parseHeaderBlock(data[:idx])
	body := data[idx+len(headerBodySeparator):]
	return &Frame{Headers: headers, Body: body}, nil
}

// DecodeBinary decodes an inbound binary frame: a big-endian u16 header
// length, that many bytes of header block, then the raw MP3 payload.
func DecodeBinary(data []byte) (*Frame, error) {
	if len(data) < 2 {
		return nil, edgeerr.New(edgeerr.KindProtocolMalformedBinary, "frame shorter than header length prefix")
	}
	headerLen := int(binary.BigEndian.Uint16(data[:2]))
	if headerLen > len(data)-2 {
		return nil, edgeerr.New(edgeerr.KindProtocolMalformedBinary, "header length exceeds remaining payload")
	}
	headerBlock := data[2 : 2+headerLen]
	payload := data[2+headerLen:]
	headers := parseHeaderBlock(headerBlock)
	return &Frame{Headers: headers, Body: payload}, nil
}
