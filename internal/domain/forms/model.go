package forms

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chw/forms/internal/formengine/question"
	"github.com/chw/forms/internal/formengine/render"
	"github.com/chw/forms/internal/formengine/wire"
)

// Template is one stored version of a form template.
type Template struct {
	ID                 uuid.UUID
	ClassificationID   uuid.UUID
	ClassificationName string
	Version            int
	Languages          []string
	Questions          []wire.Question
	Archived           bool
	CreatedBy          string
	CreatedAt          time.Time
}

func (t *Template) ToWire() wire.Template {
	return wire.Template{
		ID:             t.ID.String(),
		Classification: wire.Classification{ID: t.ClassificationID.String(), Name: t.ClassificationName},
		Version:        strconv.Itoa(t.Version),
		Archived:       t.Archived,
		Languages:      t.Languages,
		Questions:      t.Questions,
	}
}

// Model returns the engine view of the template.
func (t *Template) Model() question.Template {
	return wire.ToModel(t.ToWire())
}

// QuestionResponse is one question of a stored response with its answer. Its
// ID is what edit deltas address.
type QuestionResponse struct {
	ID       uuid.UUID
	Question wire.Question
	Answers  wire.Answers
	IsBlank  bool
}

// Response is a stored form response. Version and classification come from
// the template it was filled against.
type Response struct {
	ID                 uuid.UUID
	TemplateID         uuid.UUID
	PatientID          string
	Version            int
	ClassificationID   uuid.UUID
	ClassificationName string
	Languages          []string
	Questions          []QuestionResponse
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r *Response) ToWire() wire.Response {
	out := wire.Response{
		ID:             r.ID.String(),
		FormTemplateID: r.TemplateID.String(),
		PatientID:      r.PatientID,
		Version:        strconv.Itoa(r.Version),
		Classification: wire.Classification{ID: r.ClassificationID.String(), Name: r.ClassificationName},
		Languages:      r.Languages,
		Questions:      r.wireQuestions(),
	}
	if !r.CreatedAt.IsZero() {
		out.DateCreated = r.CreatedAt.Unix()
	}
	if !r.UpdatedAt.IsZero() {
		out.LastEdited = r.UpdatedAt.Unix()
	}
	return out
}

func (r *Response) wireQuestions() []wire.ResponseQuestion {
	out := make([]wire.ResponseQuestion, len(r.Questions))
	for i, qr := range r.Questions {
		q := qr.Question
		q.ID = qr.ID.String()
		out[i] = wire.ResponseQuestion{Question: q, Answers: qr.Answers, IsBlank: qr.IsBlank}
	}
	return out
}

// Model returns the engine view of the response's question snapshot, with
// each question's ID set to its question-response id.
func (r *Response) Model() question.Template {
	qs := make([]wire.Question, len(r.Questions))
	for i, qr := range r.Questions {
		qs[i] = qr.Question
		qs[i].ID = qr.ID.String()
	}
	return wire.ToModel(wire.Template{
		ID:             r.TemplateID.String(),
		Classification: wire.Classification{ID: r.ClassificationID.String(), Name: r.ClassificationName},
		Version:        strconv.Itoa(r.Version),
		Languages:      r.Languages,
		Questions:      qs,
	})
}

// RenderedForm is a blank template laid out for display in one language.
type RenderedForm struct {
	TemplateID string         `json:"formTemplateId"`
	Version    string         `json:"version"`
	Language   string         `json:"language"`
	Languages  []string       `json:"languages"`
	Fields     []render.Field `json:"fields"`
}
