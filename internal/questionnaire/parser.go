// Package questionnaire turns raw questionnaire text into ordered
// sections of questions. Headings like "1. General Information",
// "Section B: Financials" or markdown "## Financials" open a section;
// numbered, bulleted, or question-mark lines inside it become
// questions. Text with no recognizable heading lands in a single
// "General" section.
package questionnaire

import (
	"fmt"
	"regexp"
	"strings"
)

type Section struct {
	Title     string   `json:"title"`
	Questions []string `json:"questions"`
}

var (
	mdHeading       = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	sectionHeading  = regexp.MustCompile(`(?i)^section\s+[A-Z0-9]+\s*[:.\-]\s*(.+)$`)
	numberedHeading = regexp.MustCompile(`^(\d+)\.\s+([^?]+)$`)
	questionPrefix  = regexp.MustCompile(`^(\d+(\.\d+)+[.)]?|\d+[.)]|[a-z][.)]|[-*•])\s+`)
	topLevelNumber  = regexp.MustCompile(`^\d+[.)]\s`)
)

func Parse(raw string) ([]Section, error) {
	var sections []Section
	current := -1

	open := func(title string) {
		sections = append(sections, Section{Title: strings.TrimSpace(title)})
		current = len(sections) - 1
	}
	addQuestion := func(text string) {
		if current < 0 {
			open("General")
		}
		sections[current].Questions = append(sections[current].Questions, text)
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := mdHeading.FindStringSubmatch(line); m != nil {
			open(m[1])
			continue
		}
		if m := sectionHeading.FindStringSubmatch(line); m != nil {
			open(m[1])
			continue
		}
		if text, ok := questionText(line); ok {
			addQuestion(text)
			continue
		}
		// A short numbered line that is not a question reads as a
		// heading ("1. General Information"); anything else is prose
		// between questions and is skipped.
		if m := numberedHeading.FindStringSubmatch(line); m != nil && len(line) < 80 {
			open(m[2])
		}
	}

	total := 0
	for i := range sections {
		total += len(sections[i].Questions)
	}
	if total == 0 {
		return nil, fmt.Errorf("no questions found in questionnaire text")
	}
	// Drop heading-only sections so imports never create empty groups.
	kept := sections[:0]
	for _, s := range sections {
		if len(s.Questions) > 0 {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

func questionText(line string) (string, bool) {
	stripped := questionPrefix.ReplaceAllString(line, "")
	if strings.HasSuffix(stripped, "?") {
		return stripped, true
	}
	// A top-level "1. Something" with no question mark is a heading
	// candidate, not a question; sub-numbered, lettered, and bulleted
	// items count as questions either way ("3.2 Describe your backup
	// strategy").
	if stripped != line && len(stripped) > 0 && !topLevelNumber.MatchString(line) {
		return stripped, true
	}
	return "", false
}
