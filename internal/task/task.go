package task

import (
	"fmt"
	"sort"
	"strings"
)

// Task enumerates the generation and editing operations offered to the user.
// The set is closed; anything else coming in from a form is rejected at parse
// time.
type Task string

const (
	AdGeneration             Task = "ad-generation"
	ControlSketch            Task = "control-sketch"
	ControlStructure         Task = "control-structure"
	SearchRecolor            Task = "search-recolor"
	SearchReplace            Task = "search-replace"
	ReplaceBackgroundRelight Task = "replace-background-relight"
	UpscaleCreative          Task = "upscale-creative"
)

var labels = map[Task]string{
	AdGeneration:             "Marketing Ad",
	ControlSketch:            "Control Sketch",
	ControlStructure:         "Control Structure",
	SearchRecolor:            "Search and Recolor",
	SearchReplace:            "Search and Replace",
	ReplaceBackgroundRelight: "Replace Background and Relight",
	UpscaleCreative:          "Upscale Creative",
}

// All returns every supported task in a stable order for rendering selectors.
func All() []Task {
	out := make([]Task, 0, len(labels))
	for t := range labels {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse normalizes a form value into a Task.
func Parse(s string) (Task, error) {
	t := Task(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := labels[t]; !ok {
		return "", fmt.Errorf("unsupported task %q", s)
	}
	return t, nil
}

func (t Task) String() string { return string(t) }

// Label returns the human-facing name shown in the task selector.
func (t Task) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// Field names a form input a task may require. The values match the form
// field names so validation errors can be surfaced inline.
type Field string

const (
	FieldPrompt                  Field = "prompt"
	FieldSourceImage             Field = "source_image"
	FieldSearchPrompt            Field = "search_prompt"
	FieldSelectPrompt            Field = "select_prompt"
	FieldBackgroundPrompt        Field = "background_prompt"
	FieldForegroundPrompt        Field = "foreground_prompt"
	FieldNegativePrompt          Field = "negative_prompt"
	FieldSeed                    Field = "seed"
	FieldAspectRatio             Field = "aspect_ratio"
	FieldSize                    Field = "size"
	FieldControlStrength         Field = "control_strength"
	FieldCreativity              Field = "creativity"
	FieldGrowMask                Field = "grow_mask"
	FieldLightDirection          Field = "light_direction"
	FieldLightStrength           Field = "light_strength"
	FieldPreserveOriginalSubject Field = "preserve_original_subject"
)

// Requirements describes which fields a task needs before it can be sent to
// the vendor. Optional fields are listed so the UI can decide what to show;
// validation only enforces Required.
type Requirements struct {
	Required []Field
	Optional []Field
}

var requirements = map[Task]Requirements{
	AdGeneration: {
		Required: []Field{FieldPrompt},
		Optional: []Field{FieldSeed, FieldNegativePrompt, FieldAspectRatio, FieldSize},
	},
	ControlSketch: {
		Required: []Field{FieldSourceImage, FieldPrompt},
		Optional: []Field{FieldControlStrength, FieldSeed, FieldNegativePrompt},
	},
	ControlStructure: {
		Required: []Field{FieldSourceImage, FieldPrompt},
		Optional: []Field{FieldControlStrength, FieldSeed, FieldNegativePrompt},
	},
	SearchRecolor: {
		Required: []Field{FieldSourceImage, FieldSelectPrompt, FieldPrompt},
		Optional: []Field{FieldGrowMask, FieldSeed, FieldNegativePrompt},
	},
	SearchReplace: {
		Required: []Field{FieldSourceImage, FieldSearchPrompt, FieldPrompt},
		Optional: []Field{FieldSeed, FieldNegativePrompt},
	},
	ReplaceBackgroundRelight: {
		Required: []Field{FieldSourceImage, FieldBackgroundPrompt},
		Optional: []Field{FieldForegroundPrompt, FieldPreserveOriginalSubject, FieldLightDirection, FieldLightStrength, FieldSeed},
	},
	UpscaleCreative: {
		Required: []Field{FieldSourceImage, FieldPrompt},
		Optional: []Field{FieldCreativity, FieldSeed, FieldNegativePrompt},
	},
}

// Require returns the field table entry for the task.
func (t Task) Require() Requirements {
	return requirements[t]
}

// Input is the normalized parameter bag assembled from the submitted form.
// Only the fields relevant to the selected task are consulted.
type Input struct {
	Prompt                  string
	NegativePrompt          string
	Seed                    int
	OutputFormat            string
	AspectRatio             string
	Size                    string
	SourceImage             []byte
	SourceName              string
	SearchPrompt            string
	SelectPrompt            string
	BackgroundPrompt        string
	ForegroundPrompt        string
	PreserveOriginalSubject float64
	ControlStrength         float64
	Creativity              float64
	GrowMask                int
	LightDirection          string
	LightStrength           float64
}

// ValidationError reports the required fields missing from a submission.
type ValidationError struct {
	Task          Task
	MissingFields []Field
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.MissingFields))
	for i, f := range e.MissingFields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s: missing required fields: %s", e.Task, strings.Join(names, ", "))
}

// Validate checks the input against the task's required field table. It
// returns a *ValidationError listing exactly the missing fields, or nil.
// Callers must not contact the vendor when validation fails.
func Validate(t Task, in Input) error {
	var missing []Field
	for _, f := range requirements[t].Required {
		if !present(f, in) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Task: t, MissingFields: missing}
	}
	return nil
}

func present(f Field, in Input) bool {
	switch f {
	case FieldPrompt:
		return strings.TrimSpace(in.Prompt) != ""
	case FieldSourceImage:
		return len(in.SourceImage) > 0
	case FieldSearchPrompt:
		return strings.TrimSpace(in.SearchPrompt) != ""
	case FieldSelectPrompt:
		return strings.TrimSpace(in.SelectPrompt) != ""
	case FieldBackgroundPrompt:
		return strings.TrimSpace(in.BackgroundPrompt) != ""
	default:
		return false
	}
}
