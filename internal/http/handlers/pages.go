package handlers

import (
	"net/http"

	"adstudio/internal/task"
)

type taskOption struct {
	Value    string
	Label    string
	Required []string
	Optional []string
}

type indexView struct {
	Tasks     []taskOption
	Formats   []string
	HasResult bool
}

// Index renders the task form page.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	sess := a.currentSession(w, r)
	_, hasResult := sess.Get()

	tasks := make([]taskOption, 0, len(task.All()))
	for _, t := range task.All() {
		req := t.Require()
		opt := taskOption{Value: t.String(), Label: t.Label()}
		for _, f := range req.Required {
			opt.Required = append(opt.Required, string(f))
		}
		for _, f := range req.Optional {
			opt.Optional = append(opt.Optional, string(f))
		}
		tasks = append(tasks, opt)
	}

	a.render(w, http.StatusOK, "index.html", indexView{
		Tasks:     tasks,
		Formats:   []string{"png", "jpeg", "webp"},
		HasResult: hasResult,
	})
}
