package agent

import (
	"strings"

	"github.com/fitstack/coach/internal/memory"
)

const basePrompt = `You are a knowledgeable, encouraging fitness and nutrition coach.
Answer questions about fitness, nutrition, and body composition. Use the
available tools whenever a calculation or data lookup is needed instead of
estimating. Keep answers concise and grounded in the tool results. If a tool
fails, apologize for the missing data and answer with what you have.`

// buildSystemPrompt folds the assembled memory into the system
// message: relevant long-term memories first, then the recent
// conversation oldest to newest so it reads chronologically.
func buildSystemPrompt(entries []memory.Entry) string {
	var long, short []memory.Entry
	for _, e := range entries {
		switch e.Source {
		case memory.SourceLongTerm:
			long = append(long, e)
		case memory.SourceShortTerm:
			short = append(short, e)
		}
	}

	var b strings.Builder
	b.WriteString(basePrompt)

	if len(long) > 0 {
		b.WriteString("\n\nRelevant things you remember about this user:\n")
		for _, e := range long {
			b.WriteString("- ")
			b.WriteString(e.Text)
			b.WriteString("\n")
		}
	}

	if len(short) > 0 {
		b.WriteString("\nRecent conversation:\n")
		// short-term entries arrive newest first
		for i := len(short) - 1; i >= 0; i-- {
			b.WriteString(short[i].Role)
			b.WriteString(": ")
			b.WriteString(short[i].Text)
			b.WriteString("\n")
		}
	}

	return b.String()
}
