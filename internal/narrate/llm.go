package narrate

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rs/zerolog/log"

	"github.com/ubglab/ruleharvest/internal/cache"
	"github.com/ubglab/ruleharvest/internal/llm"
)

const systemMessage = "You are the narrator of a board game tutorial video. Rewrite the draft line you are given so it sounds natural when spoken aloud. Keep every fact, keep it to at most two sentences, and answer with the line only, no quotes and no commentary."

// LLMNarrator polishes template narration through an OpenAI-compatible
// model. Replies are cached on disk by model and prompt, so a replay of the
// same manifest produces the same storyboard. Every failure falls back to
// the template text.
type LLMNarrator struct {
	Client   llm.Client
	Model    string
	Cache    *cache.Replies
	Template *TemplateNarrator
}

type cachedReply struct {
	Text string `json:"text"`
}

// Narrate returns the polished line for one scene seed.
func (n *LLMNarrator) Narrate(ctx context.Context, seed Seed) string {
	draft := n.template().Narrate(seed)
	if n.Client == nil || n.Model == "" {
		return draft
	}

	prompt := n.prompt(seed, draft)
	key := cache.ReplyKey(n.Model, systemMessage+"\n\n"+prompt)
	if raw, ok := n.Cache.Get(key); ok {
		var r cachedReply
		if err := json.Unmarshal(raw, &r); err == nil && strings.TrimSpace(r.Text) != "" {
			return r.Text
		}
	}

	resp, err := n.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
		N:           1,
	})
	if err != nil || len(resp.Choices) == 0 {
		log.Warn().Err(err).Str("scene", seed.SceneType).Msg("narration model call failed, keeping template text")
		return draft
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return draft
	}
	if raw, err := json.Marshal(cachedReply{Text: text}); err == nil {
		if err := n.Cache.Save(key, raw); err != nil {
			log.Warn().Err(err).Msg("narration reply cache write failed")
		}
	}
	return text
}

func (n *LLMNarrator) prompt(seed Seed, draft string) string {
	var b strings.Builder
	b.WriteString("Game: ")
	b.WriteString(seed.GameTitle)
	b.WriteString("\nScene: ")
	b.WriteString(seed.SceneType)
	if seed.Heading != "" {
		b.WriteString("\nSection: ")
		b.WriteString(seed.Heading)
	}
	if len(seed.Components) > 0 {
		b.WriteString("\nComponents: ")
		b.WriteString(joinListCapped(seed.Components, 12))
	}
	b.WriteString("\nDraft: ")
	b.WriteString(draft)
	return b.String()
}

func (n *LLMNarrator) template() *TemplateNarrator {
	if n.Template != nil {
		return n.Template
	}
	return &TemplateNarrator{}
}
