package util

import "testing"

func TestSplitSpansSentenceBoundaries(t *testing.T) {
	text := "Revenue grew 12% in Q3. Costs were flat. The outlook remains stable."
	spans := SplitSpans(text, 40)
	if len(spans) < 2 {
		t.Fatalf("expected multiple spans, got %d", len(spans))
	}
	for _, s := range spans {
		if len([]rune(s)) > 40 {
			t.Fatalf("span exceeds max length: %q", s)
		}
	}
}

func TestSplitSpansLongSentenceHardCut(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "abcdefghij"
	}
	spans := SplitSpans(long, 100)
	if len(spans) < 5 {
		t.Fatalf("expected hard cuts, got %d spans", len(spans))
	}
}

func TestSplitSpansKeepsDecimals(t *testing.T) {
	spans := SplitSpans("Margin was 3.14 percent. Next topic.", 200)
	if len(spans) == 0 || spans[0] == "Margin was 3." {
		t.Fatalf("decimal split incorrectly: %v", spans)
	}
}
