// Package subtitles builds the burned-in SRT track of a story short.
//
// Cues follow the narration timeline: one cue per scene, wrapped to
// LineWidth characters, shifted to account for the crossfade between clips.
package subtitles
