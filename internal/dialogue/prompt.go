package dialogue

import (
	"strings"

	"github.com/kaiwa-ai/kaiwa/internal/store"
)

// composePrompt builds the user-side prompt in fixed section order:
// memory, history, then the current utterance, each under a labeled
// block. Empty sections keep their labels so the model always sees the
// same frame.
func composePrompt(memories []store.MemoryRow, history []Turn, message string) string {
	var b strings.Builder

	b.WriteString("[Memory]\n")
	for _, row := range memories {
		b.WriteString("- ")
		b.WriteString(row.Content)
		b.WriteByte('\n')
	}

	b.WriteString("\n[History]\n")
	for _, turn := range history {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}

	b.WriteString("\n[User]\n")
	b.WriteString(message)
	return b.String()
}

// emojiNote tells the model it is allowed to lean on emoji and stickers.
// Appended only for personas with emoji behavior enabled.
const emojiNote = "You may use emoji and expressive stickers in your replies when they fit the mood."

// composeSystem folds the persona's emoji permission and an optional
// plan into the system prompt.
func composeSystem(personaPrompt, plan string, emoji bool) string {
	system := personaPrompt
	if emoji {
		system += "\n\n" + emojiNote
	}
	if strings.TrimSpace(plan) == "" {
		return system
	}
	return system + "\n\n[Plan]\n" + plan
}

// planningPrompt asks the planner model for a short free-text plan.
func planningPrompt(memories []store.MemoryRow, history []Turn, message string) string {
	var b strings.Builder
	b.WriteString("Plan the assistant's next reply. Consider the context below and ")
	b.WriteString("describe, in at most three short sentences, what the reply should ")
	b.WriteString("cover and in what tone. Output only the plan.\n\n")
	b.WriteString(composePrompt(memories, history, message))
	return b.String()
}

// chunkWords splits text into groups of up to n whitespace-delimited
// words, preserving the original word order. Punctuation stays attached
// to its word.
func chunkWords(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if n <= 0 {
		n = 1
	}

	chunks := make([]string, 0, (len(words)+n-1)/n)
	for start := 0; start < len(words); start += n {
		end := start + n
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
