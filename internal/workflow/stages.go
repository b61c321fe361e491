package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"storydub/internal/adapters"
	"storydub/internal/cachestore"
	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/fileutil"
	"storydub/internal/jobs"
	"storydub/internal/services"
	"storydub/internal/stage"
	"storydub/internal/validation"
)

// Pipelines maps each job kind to its ordered stages.
type Pipelines map[jobs.Kind][]stage.Definition

// NewPipelines builds the dub and story pipelines.
func NewPipelines(cfg *config.Config, cat *catalog.Catalog) Pipelines {
	b := &builder{cfg: cfg, catalog: cat}
	return Pipelines{
		jobs.KindDub:   b.dubStages(),
		jobs.KindStory: b.storyStages(),
	}
}

// StageNames lists the stage names of kind in order.
func (p Pipelines) StageNames(kind jobs.Kind) []string {
	defs := p[kind]
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

type builder struct {
	cfg     *config.Config
	catalog *catalog.Catalog
}

func fileKey(_ *stage.State, u stage.Unit) (string, error) {
	digest, err := fileutil.FileDigest(u.Input)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "digest input", u.Label, err)
	}
	return digest, nil
}

func unitsFor(inputs []string, target func(int) string) []stage.Unit {
	units := make([]stage.Unit, len(inputs))
	for i, input := range inputs {
		units[i] = stage.Unit{
			Index:  i,
			Label:  fmt.Sprintf("chunk %03d", i),
			Input:  input,
			Target: target(i),
		}
	}
	return units
}

func writeTextOutput(path, text string) (stage.Output, error) {
	if err := fileutil.WriteText(path, strings.TrimSpace(text)); err != nil {
		return stage.Output{}, services.Wrap(services.ErrExternalTool, "", "write text", path, err)
	}
	return stage.Output{Path: path}, nil
}

func readOutputs(outputs []stage.Output) ([]string, error) {
	texts := make([]string, len(outputs))
	for i, out := range outputs {
		text, err := fileutil.ReadText(out.Path)
		if err != nil {
			return nil, err
		}
		texts[i] = strings.TrimSpace(text)
	}
	return texts, nil
}

func outputPaths(outputs []stage.Output) []string {
	paths := make([]string, len(outputs))
	for i, out := range outputs {
		paths[i] = out.Path
	}
	return paths
}

func joinNonEmpty(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, text := range texts {
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func speechKey(st *stage.State, u stage.Unit) (string, error) {
	return cachestore.Fingerprint(u.Input, st.Params.Speaker, strconv.FormatFloat(st.Params.Pace, 'f', 2, 64)), nil
}

func synthesizeUnit(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
	err := st.Adapters.Speech.Synthesize(ctx, adapters.SpeechRequest{
		Text:     u.Input,
		Language: st.Params.TargetLang,
		Speaker:  st.Params.Speaker,
		Pace:     st.Params.Pace,
	}, u.Target)
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{Path: u.Target}, nil
}

const metaVerdict = "verdict"

// reportOutput stores the gate report, echoes each check to the job log and
// turns failed checks into a quality error.
func reportOutput(st *stage.State, u stage.Unit, report validation.Report) (stage.Output, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrExternalTool, "validate", "encode report", "", err)
	}
	if err := fileutil.WriteFileAtomic(u.Target, data); err != nil {
		return stage.Output{}, services.Wrap(services.ErrExternalTool, "validate", "write report", u.Target, err)
	}
	for _, check := range report.Checks {
		label := "PASS"
		if !check.Passed {
			label = "FAIL"
		}
		st.Reporter.Logf("validate: %s %s (%s)", check.Name, label, check.Detail)
	}
	st.Reporter.Logf("validate: %s", report.Verdict)
	if err := report.Err(); err != nil {
		return stage.Output{}, err
	}
	return stage.Output{Path: u.Target, Meta: map[string]string{metaVerdict: report.Verdict}}, nil
}

func mergeVerdict(st *stage.State, outputs []stage.Output) error {
	st.Artifacts.Verdict = outputs[0].Meta[metaVerdict]
	return nil
}
