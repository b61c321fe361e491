// Package stage defines pipeline stages as data. A Definition names a stage
// and supplies the pure functions the executor needs: partition the stage
// into units, fingerprint a unit for the cache, run one unit and merge the
// ordered outputs back into the job's artifacts.
package stage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/jobs"
)

// Capability names the adapter family a stage depends on.
type Capability string

const (
	CapabilityFetch      Capability = "fetch"
	CapabilityStories    Capability = "stories"
	CapabilityAudio      Capability = "audio"
	CapabilityTranscribe Capability = "transcribe"
	CapabilityTranslate  Capability = "translate"
	CapabilitySpeech     Capability = "speech"
	CapabilityScenes     Capability = "scenes"
	CapabilityImages     Capability = "images"
	CapabilityRender     Capability = "render"
	CapabilityValidate   Capability = "validate"
	CapabilityPublish    Capability = "publish"
	CapabilityLocal      Capability = "local"
)

// Reporter receives progress for one job.
type Reporter interface {
	Logf(format string, args ...any)
	Warnf(format string, args ...any)
	Cancelled() bool
}

// Unit is one independently executable piece of a stage.
type Unit struct {
	Index int
	Label string
	// Input is the file or value the unit consumes.
	Input string
	// Target is where the unit's output lands inside the job directory.
	Target string
}

// Output is what a unit produced.
type Output struct {
	Path string
	Meta map[string]string
}

// State is the mutable context one job carries through its pipeline.
type State struct {
	JobID     string
	Kind      jobs.Kind
	WorkDir   string
	Params    jobs.Params
	Adapters  adapters.Set
	Reporter  Reporter
	Artifacts Artifacts
}

// Path joins name onto the job directory.
func (s *State) Path(name string) string {
	return joinPath(s.WorkDir, name)
}

// Definition is the static description of one pipeline position.
type Definition struct {
	Name           string
	Capability     Capability
	FanOut         bool
	Cacheable      bool
	LanguageScoped bool
	// Timeout overrides the executor's per-call timeout when set.
	Timeout time.Duration
	// PerCall moves the timeout and retry policy from Run as a whole onto
	// each adapter call Run makes through Call.
	PerCall bool

	// Skip, when set and true, bypasses the stage entirely.
	Skip func(st *State) bool
	// Units partitions the stage. Non-fan-out stages return exactly one unit.
	Units func(ctx context.Context, st *State) ([]Unit, error)
	// Key fingerprints a unit's normalized inputs. Required for cacheable stages.
	Key func(st *State, u Unit) (string, error)
	// Run produces the unit's output at u.Target.
	Run func(ctx context.Context, st *State, u Unit) (Output, error)
	// Merge folds outputs, in unit order, into the artifacts.
	Merge func(st *State, outputs []Output) error
}

// Validate reports definitions the executor cannot run.
func (d Definition) Validate() error {
	var problems []error
	if d.Name == "" {
		problems = append(problems, errors.New("stage name required"))
	}
	if d.Units == nil {
		problems = append(problems, fmt.Errorf("stage %s: units function required", d.Name))
	}
	if d.Run == nil {
		problems = append(problems, fmt.Errorf("stage %s: run function required", d.Name))
	}
	if d.Cacheable && d.Key == nil {
		problems = append(problems, fmt.Errorf("stage %s: cacheable stages need a key function", d.Name))
	}
	return errors.Join(problems...)
}

// Single is the Units function for non-fan-out stages. A relative target
// resolves inside the job directory.
func Single(label, input, target string) func(context.Context, *State) ([]Unit, error) {
	return func(_ context.Context, st *State) ([]Unit, error) {
		path := target
		if path != "" && !filepath.IsAbs(path) {
			path = st.Path(path)
		}
		return []Unit{{Index: 0, Label: label, Input: input, Target: path}}, nil
	}
}
