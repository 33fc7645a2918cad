package util

import "strings"

// SplitSpans cuts text into tight spans on sentence boundaries, each at
// most maxLen runes. Spans longer than maxLen without any boundary are cut
// hard. Used for the citation layer, where a span must map back onto a
// narrow region of the source page.
func SplitSpans(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 300
	}
	sentences := splitSentences(text)
	out := make([]string, 0, len(sentences))
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, s := range sentences {
		if len([]rune(s)) > maxLen {
			flush()
			for _, part := range ChunkText(s, maxLen, 0) {
				out = append(out, part)
			}
			continue
		}
		if cur.Len() > 0 && len([]rune(cur.String()))+len([]rune(s))+1 > maxLen {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	flush()
	return out
}

func splitSentences(text string) []string {
	out := make([]string, 0, 16)
	var cur strings.Builder
	runes := []rune(text)
	for i, ch := range runes {
		cur.WriteRune(ch)
		if ch == '.' || ch == '!' || ch == '?' || ch == '\n' {
			// Avoid splitting decimals like 3.14.
			if ch == '.' && i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' {
				continue
			}
			s := strings.TrimSpace(cur.String())
			if s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}
