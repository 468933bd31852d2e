package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"adstudio/pkg/zip"

	"github.com/go-chi/chi/v5"
)

// Gallery lists recently generated images, newest first.
func (a *App) Gallery(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	entries, err := a.Store.List(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("gallery list failed")
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "failed to list gallery"})
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"name":     e.Key,
			"bytes":    e.Size,
			"modified": e.ModTime,
			"url":      "/gallery/" + e.Key,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GalleryImage serves one stored image by name.
func (a *App) GalleryImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := a.Store.Read(r.Context(), name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mimeByExt(name))
	_, _ = w.Write(data)
}

// GalleryArchive bundles the recent gallery into one zip download.
func (a *App) GalleryArchive(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Store.List(r.Context(), 0)
	if err != nil {
		a.Logger.Error().Err(err).Msg("gallery list failed")
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "failed to list gallery"})
		return
	}
	files := make([]zip.File, 0, len(entries))
	for _, e := range entries {
		data, err := a.Store.Read(r.Context(), e.Key)
		if err != nil {
			continue
		}
		files = append(files, zip.File{Name: e.Key, Data: data})
	}
	archive, err := zip.Archive(files)
	if err != nil {
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "failed to build archive"})
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="adstudio-gallery.zip"`)
	_, _ = w.Write(archive)
}

func mimeByExt(name string) string {
	switch strings.ToLower(name[strings.LastIndex(name, ".")+1:]) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
