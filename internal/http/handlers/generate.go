package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"adstudio/internal/overlay"
	"adstudio/internal/session"
	"adstudio/internal/stability"
	"adstudio/internal/task"
)

const maxUploadBytes = 10 << 20

// resultView is the data handed to the result fragment template.
type resultView struct {
	Error    string
	Missing  []string
	Warning  string
	HasImage bool
	Filename string
	Seed     string
	Stamp    int64
}

// Generate is the submit path: validate the form for the selected task, call
// the vendor, apply the optional overlay, cache the result for the session.
// A failure at any stage leaves the previously cached result untouched.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	sess := a.currentSession(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		a.render(w, http.StatusBadRequest, "result.html", resultView{Error: "Could not read the submitted form."})
		return
	}

	t, err := task.Parse(r.FormValue("task"))
	if err != nil {
		a.render(w, http.StatusUnprocessableEntity, "result.html", resultView{Error: "Unknown task."})
		return
	}

	in := a.taskInput(r, sess)
	if err := task.Validate(t, in); err != nil {
		var verr *task.ValidationError
		if errors.As(err, &verr) {
			missing := make([]string, len(verr.MissingFields))
			for i, f := range verr.MissingFields {
				missing[i] = string(f)
			}
			a.render(w, http.StatusUnprocessableEntity, "result.html", resultView{
				Error:   "Please fill in the required fields.",
				Missing: missing,
			})
			return
		}
		a.render(w, http.StatusUnprocessableEntity, "result.html", resultView{Error: err.Error()})
		return
	}

	res, err := a.Generator.Generate(r.Context(), t, in)
	if err != nil {
		a.renderGenerateError(w, t, err)
		return
	}

	image := res.Image
	contentType := res.ContentType
	ext := in.OutputFormat
	warning := ""

	if text := r.FormValue("overlay_text"); text != "" {
		spec, specErr := overlaySpec(text, r.FormValue("overlay_color"))
		if specErr != nil {
			warning = "Overlay skipped: " + specErr.Error()
		} else if overlaid, applyErr := overlay.Apply(image, spec); applyErr != nil {
			// The un-overlaid original is still cached and downloadable.
			warning = "Overlay failed; showing the original image."
			a.Logger.Warn().Err(applyErr).Str("task", t.String()).Msg("overlay failed")
		} else {
			image = overlaid
			contentType = "image/png"
			ext = "png"
		}
	}

	seed := res.Seed
	if seed == "" {
		seed = strconv.Itoa(in.Seed)
	}
	filename := fmt.Sprintf("%s_%s_%d.%s", t, seed, time.Now().UnixMilli(), ext)

	sess.Put(session.Result{
		Image:       image,
		ContentType: contentType,
		Filename:    filename,
		Seed:        seed,
		CreatedAt:   time.Now(),
	})

	if _, err := a.Store.Write(r.Context(), filename, image); err != nil {
		a.Logger.Warn().Err(err).Str("filename", filename).Msg("gallery write failed")
	}

	a.Logger.Info().Str("task", t.String()).Str("filename", filename).Msg("generation complete")
	a.render(w, http.StatusOK, "result.html", resultView{
		HasImage: true,
		Filename: filename,
		Seed:     seed,
		Warning:  warning,
		Stamp:    time.Now().UnixNano(),
	})
}

func (a *App) renderGenerateError(w http.ResponseWriter, t task.Task, err error) {
	var verr *stability.VendorError
	switch {
	case errors.As(err, &verr):
		a.Logger.Error().Int("status", verr.StatusCode).Str("task", t.String()).Msg("vendor call failed")
		a.render(w, http.StatusBadGateway, "result.html", resultView{Error: verr.Message})
	case errors.Is(err, stability.ErrTimeout):
		a.render(w, http.StatusGatewayTimeout, "result.html", resultView{Error: "The request timed out. Please try again."})
	default:
		a.Logger.Error().Err(err).Str("task", t.String()).Msg("generation failed")
		a.render(w, http.StatusBadGateway, "result.html", resultView{Error: "Generation failed. Please try again."})
	}
}

// taskInput assembles the parameter bag from the form. When the task needs a
// source image and none was uploaded, the session's cached result is reused
// so an edit can chain onto the previous generation.
func (a *App) taskInput(r *http.Request, sess *session.Session) task.Input {
	in := task.Input{
		Prompt:           r.FormValue("prompt"),
		NegativePrompt:   r.FormValue("negative_prompt"),
		OutputFormat:     formValue(r, "output_format", "png"),
		AspectRatio:      r.FormValue("aspect_ratio"),
		Size:             r.FormValue("size"),
		SearchPrompt:     r.FormValue("search_prompt"),
		SelectPrompt:     r.FormValue("select_prompt"),
		BackgroundPrompt: r.FormValue("background_prompt"),
		ForegroundPrompt: r.FormValue("foreground_prompt"),
		LightDirection:   r.FormValue("light_direction"),
	}
	in.Seed, _ = strconv.Atoi(r.FormValue("seed"))
	in.PreserveOriginalSubject = formFloat(r, "preserve_original_subject")
	in.ControlStrength = formFloat(r, "control_strength")
	in.Creativity = formFloat(r, "creativity")
	in.LightStrength = formFloat(r, "light_strength")
	in.GrowMask, _ = strconv.Atoi(r.FormValue("grow_mask"))

	if file, header, err := r.FormFile("source_image"); err == nil {
		data, readErr := io.ReadAll(file)
		file.Close()
		if readErr == nil && len(data) > 0 {
			in.SourceImage = data
			in.SourceName = header.Filename
		}
	}
	if len(in.SourceImage) == 0 {
		if prev, ok := sess.Get(); ok {
			in.SourceImage = prev.Image
			in.SourceName = prev.Filename
		}
	}
	return in
}

func overlaySpec(text, hex string) (overlay.Spec, error) {
	if hex == "" {
		hex = "#FFFFFF"
	}
	color, err := overlay.ParseColor(hex)
	if err != nil {
		return overlay.Spec{}, fmt.Errorf("invalid overlay color %q", hex)
	}
	return overlay.Spec{Text: text, Color: color}, nil
}

func formValue(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

func formFloat(r *http.Request, key string) float64 {
	f, _ := strconv.ParseFloat(r.FormValue(key), 64)
	return f
}
