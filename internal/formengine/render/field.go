package render

import (
	"time"

	"github.com/chw/forms/internal/formengine/answer"
	"github.com/chw/forms/internal/formengine/question"
	"github.com/chw/forms/internal/formengine/validation"
)

// Widget is the input control a field is drawn with.
type Widget string

const (
	WidgetHeading  Widget = "heading"
	WidgetRadio    Widget = "radio"
	WidgetCheckbox Widget = "checkbox"
	WidgetNumber   Widget = "number"
	WidgetTextArea Widget = "textarea"
	WidgetDate     Widget = "date"
	WidgetDateTime Widget = "datetime"
)

// WidgetFor returns the control for a question type.
func WidgetFor(t question.Type) Widget {
	switch t {
	case question.TypeCategory:
		return WidgetHeading
	case question.TypeMultipleChoice:
		return WidgetRadio
	case question.TypeMultipleSelect:
		return WidgetCheckbox
	case question.TypeInteger:
		return WidgetNumber
	case question.TypeString:
		return WidgetTextArea
	case question.TypeDate:
		return WidgetDate
	case question.TypeDateTime:
		return WidgetDateTime
	}
	return ""
}

type Choice struct {
	ID       int    `json:"id"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// Field is the view model of one visible question.
type Field struct {
	Order    int           `json:"order"`
	Category int           `json:"category"`
	Type     question.Type `json:"type"`
	Widget   Widget        `json:"widget"`
	Text     string        `json:"text"`
	Required bool          `json:"required"`
	ReadOnly bool          `json:"readOnly"`
	Options  []Choice      `json:"options,omitempty"`

	Units     string   `json:"units,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	MaxLines  *int     `json:"maxLines,omitempty"`

	Value answer.Value           `json:"-"`
	Input string                 `json:"value,omitempty"`
	Error *validation.FieldError `json:"error,omitempty"`
}

// Fields lists the visible questions in order with their current values and
// the errors that should be on screen.
func (s *Session) Fields() []Field {
	shown := make(map[int]validation.FieldError)
	for _, e := range s.report.Shown(s.attempted) {
		shown[e.QuestionOrder] = e
	}

	out := make([]Field, 0, len(s.template.Questions))
	for _, q := range s.template.Questions {
		if s.hidden[q.Order] || !q.Type.Known() {
			continue
		}
		f := s.field(q)
		if e, ok := shown[q.Order]; ok {
			f.Error = &e
		}
		out = append(out, f)
	}
	return out
}

func (s *Session) field(q question.Question) Field {
	lv, _ := q.Version(s.lang)
	v := s.answers.Get(q.Order)
	f := Field{
		Order:     q.Order,
		Category:  q.Category(),
		Type:      q.Type,
		Widget:    WidgetFor(q.Type),
		Text:      lv.Text,
		Required:  q.Required,
		ReadOnly:  s.mode == ModeView || q.IsCategory(),
		Units:     q.Units,
		Min:       q.NumMin,
		Max:       q.NumMax,
		MaxLength: q.StringMaxLength,
		MaxLines:  q.StringMaxLines,
		Value:     v,
		Input:     display(q, v),
	}
	if q.Type.IsChoice() {
		selected, _ := v.(answer.Choice)
		for _, o := range lv.Options {
			f.Options = append(f.Options, Choice{ID: o.ID, Text: o.Text, Selected: selected.Has(o.Text)})
		}
	}
	return f
}

// display renders the value the way its widget shows it.
func display(q question.Question, v answer.Value) string {
	switch x := v.(type) {
	case answer.Text:
		return string(x)
	case answer.Number:
		if !x.Valid {
			return x.Raw
		}
		switch q.Type {
		case question.TypeDate:
			return x.Time().Format(time.DateOnly)
		case question.TypeDateTime:
			return x.Time().Format(time.DateTime)
		}
		return x.Raw
	}
	return ""
}
