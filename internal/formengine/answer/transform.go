package answer

import (
	"encoding/json"

	"github.com/chw/forms/internal/formengine/question"
	"github.com/chw/forms/internal/formengine/wire"
)

// APIAnswer is the intermediate shape both submission bodies are built from.
type APIAnswer struct {
	QuestionOrder int
	Answer        wire.Answers
}

// ToAPIAnswers converts in-memory answers to their API shape. Choice answers
// are resolved from option text to option id using the lang option list;
// text that matches no option is left out.
//
// Answers on categories or on unrecognised types are skipped. Answers whose
// question is missing, or whose kind does not fit the question, are dropped
// and their orders returned so the caller can report them.
func ToAPIAnswers(answers Set, qs []question.Question, lang string) ([]APIAnswer, []int) {
	byOrder := make(map[int]question.Question, len(qs))
	for _, q := range qs {
		byOrder[q.Order] = q
	}

	var out []APIAnswer
	var dropped []int
	for _, a := range answers.Answers() {
		q, ok := byOrder[a.QuestionOrder]
		if !ok {
			dropped = append(dropped, a.QuestionOrder)
			continue
		}
		kind := KindFor(q.Type)
		if kind == KindNone {
			continue
		}
		if a.Value != nil && a.Value.Kind() != kind {
			dropped = append(dropped, a.QuestionOrder)
			continue
		}
		out = append(out, APIAnswer{QuestionOrder: q.Order, Answer: payload(q, a.Value, lang)})
	}
	return out, dropped
}

func payload(q question.Question, v Value, lang string) wire.Answers {
	var w wire.Answers
	switch x := v.(type) {
	case Choice:
		ids := make([]int, 0, len(x))
		for _, text := range x {
			if id, ok := q.OptionID(lang, text); ok {
				ids = append(ids, id)
			}
		}
		w.MCIDArray = ids
	case Text:
		if x != "" {
			s := string(x)
			w.Text = &s
		}
	case Number:
		if x.Valid {
			n := x.Value
			w.Number = &n
		}
	}
	return w
}

// FromAPIAnswers rebuilds in-memory answers from their API shape, turning
// option ids back into lang option text. Empty payloads and answers whose
// question is missing produce no entry.
func FromAPIAnswers(api []APIAnswer, qs []question.Question, lang string) Set {
	byOrder := make(map[int]question.Question, len(qs))
	for _, q := range qs {
		byOrder[q.Order] = q
	}

	out := make(Set, len(api))
	for _, a := range api {
		q, ok := byOrder[a.QuestionOrder]
		if !ok || a.Answer.Empty() {
			continue
		}
		switch KindFor(q.Type) {
		case KindMC:
			var c Choice
			for _, id := range a.Answer.MCIDArray {
				if text, ok := q.OptionText(lang, id); ok {
					c = append(c, text)
				}
			}
			if len(c) > 0 {
				out[q.Order] = c
			}
		case KindText:
			if a.Answer.Text != nil {
				out[q.Order] = Text(*a.Answer.Text)
			}
		case KindNumber:
			if a.Answer.Number != nil {
				out[q.Order] = NewNumber(*a.Answer.Number)
			}
		}
	}
	return out
}

// FromResponse extracts the API answers carried by stored response questions.
func FromResponse(rqs []wire.ResponseQuestion) []APIAnswer {
	out := make([]APIAnswer, 0, len(rqs))
	for _, rq := range rqs {
		if rq.IsBlank {
			continue
		}
		out = append(out, APIAnswer{QuestionOrder: rq.QuestionIndex, Answer: rq.Answers})
	}
	return out
}

// ToCreateBody embeds the answers into every question of t for a new
// response. Questions without a usable answer are marked blank.
func ToCreateBody(api []APIAnswer, t question.Template, patientID string) wire.CreateBody {
	byOrder := make(map[int]wire.Answers, len(api))
	for _, a := range api {
		byOrder[a.QuestionOrder] = a.Answer
	}

	w := wire.FromModel(t)
	body := wire.CreateBody{
		PatientID:      patientID,
		FormTemplateID: t.ID,
		Classification: w.Classification,
		Languages:      w.Languages,
		Questions:      make([]wire.ResponseQuestion, 0, len(w.Questions)),
	}
	for _, q := range w.Questions {
		q.ID = ""
		a := byOrder[q.QuestionIndex]
		body.Questions = append(body.Questions, wire.ResponseQuestion{
			Question: q,
			Answers:  a,
			IsBlank:  a.Empty(),
		})
	}
	return body
}

// ToEditBody turns the answers into deltas addressed by each question's
// stored response id. Questions without an id cannot be addressed and are
// skipped.
func ToEditBody(api []APIAnswer, qs []question.Question) []wire.EditDelta {
	byOrder := make(map[int]question.Question, len(qs))
	for _, q := range qs {
		byOrder[q.Order] = q
	}

	out := make([]wire.EditDelta, 0, len(api))
	for _, a := range api {
		q, ok := byOrder[a.QuestionOrder]
		if !ok || q.ID == "" {
			continue
		}
		out = append(out, wire.EditDelta{ID: q.ID, Answers: a.Answer})
	}
	return out
}

// PostBody is the submission payload in either mode.
type PostBody struct {
	Create *wire.CreateBody
	Edit   []wire.EditDelta
}

func (p PostBody) IsEdit() bool { return p.Create == nil }

func (p PostBody) MarshalJSON() ([]byte, error) {
	if p.Create != nil {
		return json.Marshal(p.Create)
	}
	if p.Edit == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Edit)
}

// ToPostBody builds the edit deltas when isEdit is set and the create body
// otherwise.
func ToPostBody(api []APIAnswer, t question.Template, patientID string, isEdit bool) PostBody {
	if isEdit {
		return PostBody{Edit: ToEditBody(api, t.Questions)}
	}
	body := ToCreateBody(api, t, patientID)
	return PostBody{Create: &body}
}
