package codec

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/rapidaai/edgetts/internal/edgeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText_RoundTrip(t *testing.T) {
	headers := []Header{
		{"X-RequestId", "abc123"},
		{"X-Timestamp", "2024-01-01T00:00:00.000000Z"},
		{"Content-Type", "application/ssml+xml"},
		{"Path", "ssml"},
	}
	body := "<speak>hello</speak>"

	encoded := EncodeTextFrame(headers, body)
	frame, err := DecodeText(encoded)
	require.NoError(t, err)

	for _, h := range headers {
		assert.Equal(t, h.Value, frame.Headers[h.Name])
	}
	assert.Equal(t, body, string(frame.Body))
}

func TestDecodeText_CaseInsensitiveRequestId(t *testing.T) {
	raw := []byte("x-requestid:abc\r\nPath:turn.end\r\n\r\n")
	frame, err := DecodeText(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", RequestId(frame.Headers))
}

func TestDecodeText_TolerantHeaderSpacing(t *testing.T) {
	raw := []byte("Path: turn.start\r\nX-RequestId:abc\r\n\r\n{}")
	frame, err := DecodeText(raw)
	require.NoError(t, err)
	assert.Equal(t, "turn.start", Path(frame.Headers))
	assert.Equal(t, "{}", string(frame.Body))
}

func TestDecodeText_MissingSeparatorIsMalformed(t *testing.T) {
	raw := []byte("X-RequestId:abc\r\nPath:turn.end")
	_, err := DecodeText(raw)
	require.Error(t, err)
	e, ok := edgeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, edgeerr.KindProtocolMalformedText, e.Kind)
}

func TestEncodeSpeechConfig(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 123_000_000, time.UTC)
	frame := EncodeSpeechConfig("req-1", ts)
	decoded, err := DecodeText(frame)
	require.NoError(t, err)
	assert.Equal(t, "req-1", RequestId(decoded.Headers))
	assert.Equal(t, "speech.config", Path(decoded.Headers))
	assert.Contains(t, string(decoded.Body), `"wordBoundaryEnabled":true`)
}

func TestEncodeSSML(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	frame := EncodeSSML("req-2", ts, "<speak>hi</speak>")
	decoded, err := DecodeText(frame)
	require.NoError(t, err)
	assert.Equal(t, "ssml", Path(decoded.Headers))
	assert.Equal(t, "<speak>hi</speak>", string(decoded.Body))
}

func TestTimestamp_SixDigitFraction(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 42_000_000, time.UTC)
	s := Timestamp(ts)
	assert.Equal(t, "2024-05-06T07:08:09.042000Z", s)
}

func TestDecodeBinary_RoundTrip(t *testing.T) {
	headerBlock := "X-RequestId:abc\r\nPath:audio\r\nContent-Type:audio/mpeg\r\n"
	payload := []byte{0xFF, 0xE3, 0x00, 0x01, 0x02}

	var buf []byte
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(headerBlock)))
	buf = append(buf, lenBuf...)
	buf = append(buf, []byte(headerBlock)...)
	buf = append(buf, payload...)

	frame, err := DecodeBinary(buf)
	require.NoError(t, err)
	assert.Equal(t, "audio", Path(frame.Headers))
	assert.Equal(t, payload, frame.Body)
}

func TestDecodeBinary_TruncatedPrefixNeverPanics(t *testing.T) {
	headerBlock := "Path:audio\r\n"
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(headerBlock)))
	full := append(append([]byte{}, lenBuf...), []byte(headerBlock)...)
	full = append(full, 0xFF, 0xE3)

	for n := 0; n < len(full); n++ {
		assert.NotPanics(t, func() {
			_, _ = DecodeBinary(full[:n])
		})
	}

	_, err := DecodeBinary(full[:1])
	require.Error(t, err)
	e, ok := edgeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, edgeerr.KindProtocolMalformedBinary, e.Kind)
}

func TestDecodeBinary_HeaderLengthExceedsPayload(t *testing.T) {
	buf := []byte{0x00, 0x10, 'a', 'b'}
	_, err := DecodeBinary(buf)
	require.Error(t, err)
	e, ok := edgeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, edgeerr.KindProtocolMalformedBinary, e.Kind)
}
