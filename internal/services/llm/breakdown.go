package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"storydub/internal/adapters"
	"storydub/internal/services"
)

const maxTags = 15

const breakdownSystemPrompt = `You are a YouTube Shorts scriptwriter specialising in Indian language content.
Respond with a single JSON object and nothing else, shaped as:
{"title": string, "moral": string,
 "scenes": [{"scene_number": int, "narration": string, "image_prompt": string, "duration_hint": number}],
 "youtube_title": string, "youtube_description": string, "youtube_tags": [string]}`

const breakdownUserTemplate = `Break this story into 5-8 scenes for a 60-90 second vertical short video.

RULES:
- narration: Write in %[1]s. Keep each scene to 1-3 short sentences. Natural spoken language.
- image_prompt: Always in English. Describe one vivid visual moment per scene.
  Include: art style (use "vibrant Indian folk art style, warm earthy tones"),
  main characters and their expressions, setting, time of day, colors.
  Never include any text or writing in the image description. Portrait 9:16 orientation.
- duration_hint: Estimate how many seconds the narration will take when spoken aloud.
- moral: Write in %[1]s.
- youtube_title: Engaging English title under 70 characters.
- youtube_description: 2-3 sentences.
- youtube_tags: 8-12 tags mixing English and %[1]s.

STORY:
%[2]s`

type breakdownPayload struct {
	Title  string `json:"title"`
	Moral  string `json:"moral"`
	Scenes []struct {
		SceneNumber  int     `json:"scene_number"`
		Narration    string  `json:"narration"`
		ImagePrompt  string  `json:"image_prompt"`
		DurationHint float64 `json:"duration_hint"`
	} `json:"scenes"`
	YouTubeTitle       string   `json:"youtube_title"`
	YouTubeDescription string   `json:"youtube_description"`
	YouTubeTags        []string `json:"youtube_tags"`
}

var _ adapters.SceneBreaker = (*Client)(nil)

// Breakdown asks the model for a scene plan. Narration is requested in the
// target language and image prompts in English. Scenes come back ordered by
// scene number; scenes missing narration or a prompt are dropped.
func (c *Client) Breakdown(ctx context.Context, text, language string) (adapters.Breakdown, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return adapters.Breakdown{}, services.Wrap(services.ErrValidation, "", "breakdown", "story text required", nil)
	}
	content, err := c.CompleteJSON(ctx, breakdownSystemPrompt, fmt.Sprintf(breakdownUserTemplate, c.languageName(language), text))
	if err != nil {
		return adapters.Breakdown{}, err
	}
	var payload breakdownPayload
	if err := DecodeLLMJSON(content, &payload); err != nil {
		// Malformed JSON from the model is worth another attempt.
		return adapters.Breakdown{}, services.Wrap(services.ErrTransient, "", "breakdown", "parse payload", err)
	}
	return payload.toBreakdown(), nil
}

func (c *Client) languageName(code string) string {
	if name, ok := c.languages[code]; ok && name != "" {
		return name
	}
	return code
}

func (p breakdownPayload) toBreakdown() adapters.Breakdown {
	scenes := p.Scenes
	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].SceneNumber < scenes[j].SceneNumber
	})
	out := adapters.Breakdown{
		Title:       firstNonEmpty(p.YouTubeTitle, p.Title),
		Description: strings.TrimSpace(p.YouTubeDescription),
	}
	if moral := strings.TrimSpace(p.Moral); moral != "" {
		out.Description = strings.TrimSpace(out.Description + "\n\n" + moral)
	}
	for _, tag := range p.YouTubeTags {
		if tag = strings.TrimSpace(tag); tag != "" && len(out.Tags) < maxTags {
			out.Tags = append(out.Tags, tag)
		}
	}
	for _, s := range scenes {
		narration := strings.TrimSpace(s.Narration)
		prompt := strings.TrimSpace(s.ImagePrompt)
		if narration == "" || prompt == "" {
			continue
		}
		out.Scenes = append(out.Scenes, adapters.Scene{Narration: narration, ImagePrompt: prompt})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
