package stage

import (
	"storydub/internal/adapters"
)

// Health summarizes whether a capability can serve jobs.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// CheckAdapters reports which capabilities the adapter set wires.
func CheckAdapters(set adapters.Set) []Health {
	checks := []struct {
		capability Capability
		present    bool
	}{
		{CapabilityFetch, set.Fetcher != nil},
		{CapabilityStories, set.Stories != nil},
		{CapabilityAudio, set.Audio != nil},
		{CapabilityTranscribe, set.Transcriber != nil},
		{CapabilityTranslate, set.Translator != nil},
		{CapabilitySpeech, set.Speech != nil},
		{CapabilityScenes, set.Scenes != nil},
		{CapabilityImages, set.Images != nil},
		{CapabilityRender, set.Renderer != nil},
		{CapabilityValidate, set.Prober != nil},
		{CapabilityPublish, set.Publisher != nil},
	}
	out := make([]Health, 0, len(checks))
	for _, check := range checks {
		if check.present {
			out = append(out, Healthy(string(check.capability)))
			continue
		}
		out = append(out, Unhealthy(string(check.capability), "adapter not configured"))
	}
	return out
}
