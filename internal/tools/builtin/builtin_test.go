package builtin

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kaiwa-ai/kaiwa/internal/gateway"
	"github.com/kaiwa-ai/kaiwa/internal/memory"
	"github.com/kaiwa-ai/kaiwa/internal/store"
)

type echoAdapter struct {
	lastPrompt string
}

func (a *echoAdapter) Name() string { return "echo" }

func (a *echoAdapter) Generate(_ context.Context, prompt string, _ *gateway.GenerateOptions) (*gateway.CompletionResult, error) {
	a.lastPrompt = prompt
	return &gateway.CompletionResult{Text: "generated"}, nil
}

func (a *echoAdapter) CountTokens(_ context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

type recordingAvatar struct {
	actions []string
}

func (r *recordingAvatar) Perform(_ context.Context, action string) error {
	r.actions = append(r.actions, action)
	return nil
}

func testGateway(t *testing.T, adapter *echoAdapter) *gateway.Gateway {
	t.Helper()
	gw := gateway.New(nil)
	if err := gw.Register(adapter); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return gw
}

func TestStickerPicker(t *testing.T) {
	catalog := Catalog(Deps{Stickers: map[string]string{"happy": "https://example.com/custom.png"}})
	pick := catalog["builtin.sticker_picker"]

	tests := []struct {
		name string
		mood string
		want string
	}{
		{"config override wins", "happy", "https://example.com/custom.png"},
		{"default table", "sad", defaultStickers["sad"]},
		{"unknown mood falls back", "bewildered", defaultStickers["neutral"]},
		{"empty mood falls back", "", defaultStickers["neutral"]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pick(context.Background(), map[string]any{"mood": tt.mood})
			if err != nil {
				t.Fatalf("sticker_picker: %v", err)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSuggestReplies(t *testing.T) {
	adapter := &echoAdapter{}
	catalog := Catalog(Deps{Gateway: testGateway(t, adapter), Model: "echo"})

	out, err := catalog["builtin.suggest_replies"](context.Background(), map[string]any{"reply": "It might rain today."})
	if err != nil {
		t.Fatalf("suggest_replies: %v", err)
	}
	if out != "generated" {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(adapter.lastPrompt, "It might rain today.") {
		t.Errorf("prompt missing reply: %q", adapter.lastPrompt)
	}
}

func TestSuggestRepliesRequiresReply(t *testing.T) {
	catalog := Catalog(Deps{Gateway: testGateway(t, &echoAdapter{}), Model: "echo"})

	if _, err := catalog["builtin.suggest_replies"](context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing reply")
	}
}

func TestSummarizeState(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "kaiwa.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer st.Close()

	svc := memory.NewService(st, nil, 0, nil)
	ctx := context.Background()
	if _, err := svc.AddTurn(ctx, store.ConversationRow{SessionID: "s1", Role: "user", Content: "plan my trip"}); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}

	adapter := &echoAdapter{}
	catalog := Catalog(Deps{Gateway: testGateway(t, adapter), Model: "echo", Memory: svc})

	out, err := catalog["builtin.summarize_state"](ctx, map[string]any{"session_id": "s1"})
	if err != nil {
		t.Fatalf("summarize_state: %v", err)
	}
	if out != "generated" {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(adapter.lastPrompt, "plan my trip") {
		t.Errorf("prompt missing transcript: %q", adapter.lastPrompt)
	}
}

func TestSummarizeStateEmptySession(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "kaiwa.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer st.Close()

	catalog := Catalog(Deps{
		Gateway: testGateway(t, &echoAdapter{}),
		Model:   "echo",
		Memory:  memory.NewService(st, nil, 0, nil),
	})

	out, err := catalog["builtin.summarize_state"](context.Background(), map[string]any{"session_id": "fresh"})
	if err != nil {
		t.Fatalf("summarize_state: %v", err)
	}
	if !strings.Contains(out, "not started") {
		t.Errorf("out = %q, want empty-conversation notice", out)
	}
}

func TestAvatarAction(t *testing.T) {
	avatar := &recordingAvatar{}
	catalog := Catalog(Deps{Avatar: avatar})

	out, err := catalog["builtin.avatar_action"](context.Background(), map[string]any{"action": "wave"})
	if err != nil {
		t.Fatalf("avatar_action: %v", err)
	}
	if len(avatar.actions) != 1 || avatar.actions[0] != "wave" {
		t.Errorf("actions = %v", avatar.actions)
	}
	if !strings.Contains(out, "wave") {
		t.Errorf("out = %q", out)
	}
}

func TestAvatarActionWithoutAvatar(t *testing.T) {
	catalog := Catalog(Deps{})

	out, err := catalog["builtin.avatar_action"](context.Background(), map[string]any{"action": "bow"})
	if err != nil {
		t.Fatalf("avatar_action: %v", err)
	}
	if !strings.Contains(out, "no avatar attached") || !strings.Contains(out, "bow") {
		t.Errorf("out = %q", out)
	}
}
