package httpapi

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/qfolders/qfolders/internal/server/models"
)

// Records keep user text exactly as typed. Clients that render description
// or notes as markup get a sanitized copy in the *_html fields; everything
// else must be escaped by whoever displays it.

type questionView struct {
	models.Question
	DescriptionHTML *string `json:"description_html,omitempty"`
	NotesHTML       *string `json:"notes_html,omitempty"`
}

type folderView struct {
	models.Folder
	Questions []questionView `json:"questions,omitempty"`
}

type renderer struct {
	policy *bluemonday.Policy
}

func newRenderer() *renderer {
	return &renderer{policy: bluemonday.UGCPolicy()}
}

func (r *renderer) html(s *string) *string {
	if s == nil {
		return nil
	}
	out := r.policy.Sanitize(*s)
	return &out
}

func (r *renderer) question(q *models.Question) *questionView {
	if q == nil {
		return nil
	}
	return &questionView{
		Question:        *q,
		DescriptionHTML: r.html(q.Description),
		NotesHTML:       r.html(q.Notes),
	}
}

func (r *renderer) folder(f *models.Folder) *folderView {
	if f == nil {
		return nil
	}
	v := &folderView{Folder: *f}
	v.Folder.Questions = nil
	if len(f.Questions) > 0 {
		v.Questions = make([]questionView, 0, len(f.Questions))
		for i := range f.Questions {
			v.Questions = append(v.Questions, *r.question(&f.Questions[i]))
		}
	}
	return v
}

func (r *renderer) folders(list []*models.Folder) []*folderView {
	out := make([]*folderView, 0, len(list))
	for _, f := range list {
		out = append(out, r.folder(f))
	}
	return out
}
