package retrieval

import (
	"fmt"
	"strings"
)

const synthesisSystemPrompt = `You are a precise research assistant. Answer the question using the provided context articles. Cite the article titles you drew on. If the context does not contain the answer, say so instead of guessing.`

// buildSynthesisPrompt assembles the final user prompt: worked examples
// first, then the context sections grouped under their article titles,
// then the question.
func buildSynthesisPrompt(question string, examples []Example, arts []rankedArticle) string {
	var b strings.Builder

	if len(examples) > 0 {
		b.WriteString("Here are examples of well-formed answers:\n\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "Question: %s\nAnswer: %s\n", ex.Question, ex.Answer)
			if len(ex.Sources) > 0 {
				fmt.Fprintf(&b, "Sources: %s\n", strings.Join(ex.Sources, ", "))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("CONTEXT:\n\n")
	for _, art := range arts {
		fmt.Fprintf(&b, "## %s\n\n", art.Title)
		for _, sec := range art.Sections {
			if sec.Heading != "" {
				fmt.Fprintf(&b, "### %s\n", sec.Heading)
			}
			b.WriteString(sec.Content)
			b.WriteString("\n\n")
		}
	}

	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

// noContextPrompt is used when the confidence gate bypasses the pack.
func noContextPrompt(question string) string {
	return fmt.Sprintf("Answer the following question from general knowledge. Be concise and note any uncertainty.\n\nQuestion: %s\n", question)
}
