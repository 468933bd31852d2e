package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"adstudio/internal/overlay"
	"adstudio/internal/session"
)

// Result serves the session's cached image for the preview pane.
func (a *App) Result(w http.ResponseWriter, r *http.Request) {
	sess := a.currentSession(w, r)
	res, ok := sess.Get()
	if !ok {
		http.Error(w, "no result yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(res.Image)
}

// ResultDownload serves the cached image as an attachment.
func (a *App) ResultDownload(w http.ResponseWriter, r *http.Request) {
	sess := a.currentSession(w, r)
	res, ok := sess.Get()
	if !ok {
		http.Error(w, "no result yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	_, _ = w.Write(res.Image)
}

// ApplyOverlay re-runs the caption step against the cached result. The
// overlaid copy replaces the slot; a decode failure leaves the original in
// place so it can still be downloaded.
func (a *App) ApplyOverlay(w http.ResponseWriter, r *http.Request) {
	sess := a.currentSession(w, r)
	res, ok := sess.Get()
	if !ok {
		a.render(w, http.StatusNotFound, "result.html", resultView{Error: "Generate an image first."})
		return
	}

	if err := r.ParseForm(); err != nil {
		a.render(w, http.StatusBadRequest, "result.html", resultView{Error: "Could not read the submitted form."})
		return
	}
	text := r.FormValue("overlay_text")
	if text == "" {
		a.render(w, http.StatusUnprocessableEntity, "result.html", resultView{
			Error:    "Overlay text is required.",
			HasImage: true,
			Filename: res.Filename,
			Seed:     res.Seed,
			Stamp:    time.Now().UnixNano(),
		})
		return
	}

	spec, err := overlaySpec(text, r.FormValue("overlay_color"))
	if err != nil {
		a.render(w, http.StatusUnprocessableEntity, "result.html", resultView{Error: err.Error(), HasImage: true, Filename: res.Filename, Stamp: time.Now().UnixNano()})
		return
	}

	overlaid, err := overlay.Apply(res.Image, spec)
	if err != nil {
		var derr *overlay.DecodeError
		if errors.As(err, &derr) {
			a.render(w, http.StatusUnprocessableEntity, "result.html", resultView{
				Error:    "The cached image could not be decoded; the original is still available.",
				HasImage: true,
				Filename: res.Filename,
				Seed:     res.Seed,
				Stamp:    time.Now().UnixNano(),
			})
			return
		}
		a.Logger.Error().Err(err).Msg("overlay failed")
		a.render(w, http.StatusInternalServerError, "result.html", resultView{Error: "Overlay failed."})
		return
	}

	filename := replaceExt(res.Filename, "png")
	sess.Put(session.Result{
		Image:       overlaid,
		ContentType: "image/png",
		Filename:    filename,
		Seed:        res.Seed,
		CreatedAt:   time.Now(),
	})

	a.render(w, http.StatusOK, "result.html", resultView{
		HasImage: true,
		Filename: filename,
		Seed:     res.Seed,
		Stamp:    time.Now().UnixNano(),
	})
}

func replaceExt(name, ext string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + "." + ext
}
