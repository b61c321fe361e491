// Package ffmpeg drives the ffmpeg binary for every audio and video
// transformation in a job.
//
// Audio implements adapters.AudioProcessor: mono 16 kHz extraction for
// transcription, fixed-length slicing, and concatenation of synthesized
// speech. Renderer implements adapters.Renderer: story shorts are built
// from one Ken Burns clip per scene, chained with dissolve crossfades, with
// subtitles burned in last; dubs replace the audio track and retime the
// video to the dubbed audio length.
//
// Filter graphs are assembled by pure helpers (KenBurnsFilter,
// StitchFilter, SubtitleFilter) so they can be checked without running
// ffmpeg. Failures are classified with the services error markers: a
// missing binary is a configuration error, a non-zero exit is an external
// tool error carrying the tail of ffmpeg's output.
package ffmpeg
