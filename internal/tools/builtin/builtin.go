// Package builtin provides the compile-time catalog of local tools.
// Registry locators resolve against this map, so configuration can name
// a tool without knowing which Go function backs it.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kaiwa-ai/kaiwa/internal/gateway"
	"github.com/kaiwa-ai/kaiwa/internal/memory"
	"github.com/kaiwa-ai/kaiwa/internal/tools"
)

// Avatar is an optional actuation target for avatar_action.
type Avatar interface {
	Perform(ctx context.Context, action string) error
}

// defaultStickers maps moods to sticker URLs when no config override
// is present.
var defaultStickers = map[string]string{
	"happy":    "https://cdn.kaiwa.ai/stickers/happy.png",
	"sad":      "https://cdn.kaiwa.ai/stickers/sad.png",
	"excited":  "https://cdn.kaiwa.ai/stickers/excited.png",
	"confused": "https://cdn.kaiwa.ai/stickers/confused.png",
	"neutral":  "https://cdn.kaiwa.ai/stickers/neutral.png",
}

// Deps carries everything the built-in tools may need. Avatar and
// Memory may be nil; the tools that need them degrade accordingly.
type Deps struct {
	Gateway  *gateway.Gateway
	Model    string // model name for auxiliary generations
	Memory   *memory.Service
	Avatar   Avatar
	Stickers map[string]string // mood -> URL overrides
}

// Catalog returns the locator table for local tool resolution.
func Catalog(deps Deps) map[string]tools.Func {
	return map[string]tools.Func{
		"builtin.sticker_picker":  stickerPicker(deps),
		"builtin.suggest_replies": suggestReplies(deps),
		"builtin.summarize_state": summarizeState(deps),
		"builtin.avatar_action":   avatarAction(deps),
	}
}

func stickerPicker(deps Deps) tools.Func {
	return func(_ context.Context, input map[string]any) (string, error) {
		mood, _ := input["mood"].(string)
		mood = strings.ToLower(strings.TrimSpace(mood))
		if mood == "" {
			mood = "neutral"
		}

		if url, ok := deps.Stickers[mood]; ok {
			return url, nil
		}
		if url, ok := defaultStickers[mood]; ok {
			return url, nil
		}
		return defaultStickers["neutral"], nil
	}
}

func suggestReplies(deps Deps) tools.Func {
	return func(ctx context.Context, input map[string]any) (string, error) {
		if deps.Gateway == nil {
			return "", errors.New("no gateway configured")
		}
		reply, _ := input["reply"].(string)
		if strings.TrimSpace(reply) == "" {
			return "", errors.New("input needs a reply to suggest follow-ups for")
		}

		prompt := fmt.Sprintf(
			"The assistant just said:\n%s\n\nSuggest three short replies the user might send next, one per line, no numbering.",
			reply)
		res, err := deps.Gateway.Generate(ctx, deps.Model, prompt, &gateway.GenerateOptions{MaxTokens: 200})
		if err != nil {
			return "", fmt.Errorf("generate suggestions: %w", err)
		}
		return strings.TrimSpace(res.Text), nil
	}
}

func summarizeState(deps Deps) tools.Func {
	return func(ctx context.Context, input map[string]any) (string, error) {
		if deps.Gateway == nil {
			return "", errors.New("no gateway configured")
		}
		if deps.Memory == nil {
			return "", errors.New("no memory service configured")
		}
		sessionID, _ := input["session_id"].(string)
		branch, _ := input["branch"].(string)
		if sessionID == "" {
			return "", errors.New("input needs a session_id")
		}

		turns, err := deps.Memory.Recent(ctx, sessionID, branch)
		if err != nil {
			return "", fmt.Errorf("fetch recent turns: %w", err)
		}
		if len(turns) == 0 {
			return "The conversation has not started yet.", nil
		}

		var transcript strings.Builder
		for _, turn := range turns {
			fmt.Fprintf(&transcript, "%s: %s\n", turn.Role, turn.Content)
		}
		prompt := "Summarize the state of this conversation in two sentences:\n" + transcript.String()
		res, err := deps.Gateway.Generate(ctx, deps.Model, prompt, &gateway.GenerateOptions{MaxTokens: 150})
		if err != nil {
			return "", fmt.Errorf("generate summary: %w", err)
		}
		return strings.TrimSpace(res.Text), nil
	}
}

func avatarAction(deps Deps) tools.Func {
	return func(ctx context.Context, input map[string]any) (string, error) {
		action, _ := input["action"].(string)
		action = strings.TrimSpace(action)
		if action == "" {
			return "", errors.New("input needs an action")
		}

		if deps.Avatar == nil {
			// No avatar attached: echo so the caller still sees what
			// would have happened.
			return "avatar action (no avatar attached): " + action, nil
		}
		if err := deps.Avatar.Perform(ctx, action); err != nil {
			return "", fmt.Errorf("perform %q: %w", action, err)
		}
		return "avatar action dispatched: " + action, nil
	}
}
