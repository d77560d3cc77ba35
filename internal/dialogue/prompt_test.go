package dialogue

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kaiwa-ai/kaiwa/internal/store"
)

func TestComposePromptSections(t *testing.T) {
	prompt := composePrompt(
		[]store.MemoryRow{{Content: "likes tea"}, {Content: "lives in Kyoto"}},
		[]Turn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		"what should I drink?",
	)

	want := "[Memory]\n- likes tea\n- lives in Kyoto\n\n[History]\nuser: hi\nassistant: hello\n\n[User]\nwhat should I drink?"
	if prompt != want {
		t.Errorf("composePrompt =\n%q\nwant\n%q", prompt, want)
	}
}

func TestComposePromptEmptySectionsKeepLabels(t *testing.T) {
	prompt := composePrompt(nil, nil, "hello")
	for _, label := range []string{"[Memory]", "[History]", "[User]"} {
		if !strings.Contains(prompt, label) {
			t.Errorf("prompt missing %s:\n%s", label, prompt)
		}
	}
}

func TestComposeSystem(t *testing.T) {
	if got := composeSystem("be kind", "", false); got != "be kind" {
		t.Errorf("no plan: got %q", got)
	}
	got := composeSystem("be kind", "open with a question", false)
	if got != "be kind\n\n[Plan]\nopen with a question" {
		t.Errorf("with plan: got %q", got)
	}
}

func TestComposeSystemEmojiNote(t *testing.T) {
	got := composeSystem("be kind", "", true)
	if got != "be kind\n\n"+emojiNote {
		t.Errorf("emoji without plan: got %q", got)
	}

	got = composeSystem("be kind", "open warmly", true)
	want := "be kind\n\n" + emojiNote + "\n\n[Plan]\nopen warmly"
	if got != want {
		t.Errorf("emoji with plan: got %q, want %q", got, want)
	}
}

func TestChunkWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []string
	}{
		{name: "empty", text: "   ", n: 5, want: nil},
		{name: "single chunk", text: "hello there", n: 5, want: []string{"hello there"}},
		{name: "exact multiple", text: "a b c d", n: 2, want: []string{"a b", "c d"}},
		{name: "remainder", text: "a b c d e", n: 2, want: []string{"a b", "c d", "e"}},
		{name: "punctuation stays attached", text: "well, that went fine!", n: 3, want: []string{"well, that went", "fine!"}},
		{name: "zero size treated as one", text: "a b", n: 0, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunkWords(tt.text, tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("chunkWords(%q, %d) = %v, want %v", tt.text, tt.n, got, tt.want)
			}
		})
	}
}
