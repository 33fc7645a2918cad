package questionnaire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSectionedQuestionnaire(t *testing.T) {
	raw := `
Section A: Security

1.1 Describe your encryption-at-rest approach.
1.2 How often do encryption keys rotate?

Section B: Financials

2.1 What was total revenue for the last fiscal year?
`
	sections, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, sections, 2)

	assert.Equal(t, "Security", sections[0].Title)
	assert.Equal(t, []string{
		"Describe your encryption-at-rest approach.",
		"How often do encryption keys rotate?",
	}, sections[0].Questions)

	assert.Equal(t, "Financials", sections[1].Title)
	require.Len(t, sections[1].Questions, 1)
}

func TestParseNumberedHeadings(t *testing.T) {
	raw := `1. General Information
- What is the legal name of the company?
- Where is the company headquartered?
2. Data Protection
a) Is customer data encrypted at rest?
b) Is customer data encrypted in transit?`
	sections, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "General Information", sections[0].Title)
	assert.Len(t, sections[0].Questions, 2)
	assert.Equal(t, "Data Protection", sections[1].Title)
	assert.Equal(t, []string{
		"Is customer data encrypted at rest?",
		"Is customer data encrypted in transit?",
	}, sections[1].Questions)
}

func TestParseMarkdownHeadings(t *testing.T) {
	raw := `## Compliance

* Which certifications does the company hold?

Some explanatory prose that is not a question.

## Operations

* What is the current employee headcount?`
	sections, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "Compliance", sections[0].Title)
	assert.Equal(t, "Operations", sections[1].Title)
}

func TestParseNoHeadingsFallsBackToGeneral(t *testing.T) {
	raw := "What is your uptime SLA?\nHow is customer data backed up?"
	sections, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "General", sections[0].Title)
	assert.Len(t, sections[0].Questions, 2)
}

func TestParseEmptyTextErrors(t *testing.T) {
	_, err := Parse("just prose, no questions here at all")
	require.Error(t, err)
}
