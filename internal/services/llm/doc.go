// Package llm provides an OpenRouter-compatible chat client used to plan
// story shorts.
//
// Client.Breakdown sends the story text with a JSON-mode prompt and turns
// the reply into scenes (narration in the target language, image prompt in
// English) plus title, description and tags for publishing. Replies wrapped
// in code fences or surrounded by prose are tolerated by DecodeLLMJSON.
//
// Each call makes one request. HTTP 408/429/5xx, network timeouts, empty
// completions and unparseable JSON are reported as transient so the stage
// executor retries them; other failures are fatal.
package llm
