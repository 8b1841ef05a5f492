package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompensate_ClampsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), Compensate(0))
	assert.Equal(t, int64(0), Compensate(8_750_000))
	assert.Equal(t, int64(100_000), Compensate(8_850_000))
}

func TestTicksToMs_NonNegative(t *testing.T) {
	assert.GreaterOrEqual(t, TicksToMs(Compensate(0)), int64(0))
	assert.GreaterOrEqual(t, TicksToMs(Compensate(1)), int64(0))
}

func TestTicksToMs_OneMillisecondStep(t *testing.T) {
	offset := int64(9_000_000)
	a := TicksToMs(Compensate(offset))
	b := TicksToMs(Compensate(offset + 10_000))
	assert.Equal(t, int64(1), b-a)
}

func TestResolver_HelloWorld(t *testing.T) {
	r := NewResolver("Hello world")

	idx, length := r.Resolve("Hello", 5)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 5, length)

	idx, length = r.Resolve("world", 5)
	assert.Equal(t, 6, idx)
	assert.Equal(t, 5, length)
}

func TestResolver_CaseInsensitive(t *testing.T) {
	r := NewResolver("The Quick Brown Fox")
	idx, length := r.Resolve("quick", 5)
	assert.Equal(t, 4, idx)
	assert.Equal(t, 5, length)
}

func TestResolver_PunctuationInsensitiveFallback(t *testing.T) {
	// "can’t" uses a curly apostrophe in the source text; the server
	// reports the pronounced word with a straight apostrophe of the same
	// rune length, so the exact case-insensitive match fails but the
	// punctuation-insensitive scan recovers the same span.
	r := NewResolver("I can’t believe it")
	idx, length := r.Resolve("can't", len([]rune("can't")))
	assert.Equal(t, 2, idx)
	assert.Equal(t, 5, length)
}

func TestResolver_FallsBackToCursorWhenNotFound(t *testing.T) {
	r := NewResolver("abc def")
	idx, _ := r.Resolve("abc", 3)
	assert.Equal(t, 0, idx)

	idx2, _ := r.Resolve("zzz", 3)
	assert.Equal(t, 3, idx2)
}

func TestResolver_CharLengthClampedToTextEnd(t *testing.T) {
	r := NewResolver("hi")
	idx, length := r.Resolve("hi", 10)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 2, length)
}

func TestResolver_MonotoneNonDecreasing(t *testing.T) {
	r := NewResolver("one two three two one")
	var lastIndex int
	words := []string{"one", "two", "three", "two", "one"}
	for i, w := range words {
		idx, length := r.Resolve(w, len(w))
		if i > 0 {
			assert.GreaterOrEqual(t, idx, lastIndex)
		}
		lastIndex = idx + length
	}
}
