package ollama

import (
	"fmt"
	"strings"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

const (
	maxPromptSnippet    = 4000
	maxCandidateSnippet = 600
)

const categoryList = "GENERAL, PAYROLL, HIRING, ONBOARDING, COMPLIANCE, SCHEDULING, INTEGRATIONS, PRICING, SALES, CASE_STUDIES"

func buildAnalysisPrompt(queryText string) string {
	return `You analyze questions about a workforce management platform (payroll, hiring, onboarding, compliance, scheduling).
Return a strict JSON object with keys:
primary_category (one of: ` + categoryList + `),
secondary_categories (array of the same values),
technical_level (integer 1-5, 1=end user, 5=developer; 0 if unclear),
intent (one of: informational, technical, sales, navigational),
entities (array of {name, type, confidence} for products, features, integrations, regulations),
confidence (number 0-1).
No markdown, no extra keys.

Question:
` + snippet(queryText, maxPromptSnippet)
}

func buildExpansionPrompt(queryText string) string {
	return `Expand the search query below with synonyms and workforce-management domain terms that improve recall.
Keep the original wording first. Return a strict JSON object:
expanded_query (string), added_terms (array of strings).
No markdown, no extra keys.

Query:
` + snippet(queryText, maxPromptSnippet)
}

func buildEnrichmentPrompt(chunkText string, page *domain.Page) string {
	title := ""
	if page != nil {
		title = page.Title
	}
	return fmt.Sprintf(`Summarize this passage from the page %q for a search index.
Return a strict JSON object:
description (one or two sentences, self-contained),
key_points (array of short strings),
technical_level (integer 1-5, 1=end user, 5=developer; 0 if unclear),
entities (array of product, integration, or regulation names the passage mentions).
No markdown, no extra keys.

Passage:
%s`, title, snippet(chunkText, maxPromptSnippet))
}

func buildScoringPrompt(query string, candidates []domain.Candidate, visualTypes []string) string {
	var b strings.Builder
	b.WriteString("Rate how well each passage answers the question. Return a strict JSON object ")
	b.WriteString(`with one key "scores": an array of numbers from 0 to 1, one per passage, in order.`)
	b.WriteString("\nNo markdown, no extra keys.\n")
	if len(visualTypes) > 0 {
		fmt.Fprintf(&b, "The user wants visual material; favor passages describing: %s.\n",
			strings.Join(visualTypes, ", "))
	}
	fmt.Fprintf(&b, "\nQuestion:\n%s\n\nPassages:\n", snippet(query, maxPromptSnippet))
	for i, c := range candidates {
		text := c.Text
		if text == "" {
			text = c.OriginalText
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, snippet(text, maxCandidateSnippet))
	}
	return b.String()
}

func buildClassificationPrompt(title, text string) string {
	return fmt.Sprintf(`Classify this page from a workforce management platform's site.
Return a strict JSON object:
category (one of: %s),
confidence (number 0-1).
No markdown, no extra keys.

Title: %s

Page:
%s`, categoryList, title, snippet(text, maxPromptSnippet))
}

func snippet(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
