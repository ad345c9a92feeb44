package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hashdb/pkg/buffer"
)

func TestLRUReplacerSample(t *testing.T) {
	replacer := buffer.NewLRUReplacer(7)

	replacer.Unpin(1)
	replacer.Unpin(2)
	replacer.Unpin(3)
	replacer.Unpin(4)
	replacer.Unpin(5)
	replacer.Unpin(6)
	replacer.Unpin(1) // already present, no-op
	assert.Equal(t, 6, replacer.Size())

	// Victims come back least recently made-available first.
	for _, want := range []buffer.FrameID{1, 2, 3} {
		got, ok := replacer.Victim()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	// Pin removes frames from eligibility.
	replacer.Pin(3)
	replacer.Pin(4)
	assert.Equal(t, 2, replacer.Size())

	replacer.Unpin(4)

	for _, want := range []buffer.FrameID{5, 6, 4} {
		got, ok := replacer.Victim()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := replacer.Victim()
	assert.False(t, ok)
	assert.Equal(t, 0, replacer.Size())
}
