package util

import (
	"strings"
	"testing"
)

func TestChunkTextSnapsToWordBoundaries(t *testing.T) {
	text := strings.Repeat("encryption keys rotate every ninety days ", 20)
	chunks := ChunkText(text, 100, 20)
	if len(chunks) < 5 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk %d exceeds size: %d runes", i, len([]rune(c)))
		}
		for _, word := range strings.Fields(c) {
			switch word {
			case "encryption", "keys", "rotate", "every", "ninety", "days":
			default:
				t.Fatalf("chunk %d split a word: %q", i, word)
			}
		}
	}
}

func TestChunkTextOverlapRepeatsTail(t *testing.T) {
	text := strings.Repeat("backup policy retained seven years ", 10)
	chunks := ChunkText(text, 80, 30)
	if len(chunks) < 2 {
		t.Fatalf("expected overlap to need multiple chunks, got %d", len(chunks))
	}
	// The overlap region of one chunk must reappear at the start of the next.
	tail := chunks[0][len(chunks[0])-10:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Fatalf("expected chunk 2 to repeat tail of chunk 1: %q vs %q", tail, chunks[1])
	}
}

func TestChunkTextHardCutsUnbrokenRuns(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := ChunkText(text, 100, 0)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 hard-cut chunks, got %d", len(chunks))
	}
	if chunks[0] != strings.Repeat("x", 100) {
		t.Fatalf("unexpected first chunk length %d", len(chunks[0]))
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	if got := ChunkText("   ", 100, 10); len(got) != 0 {
		t.Fatalf("expected no chunks for blank input, got %v", got)
	}
}
