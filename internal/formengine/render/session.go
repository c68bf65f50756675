// Package render drives one open form: it keeps the question list and the
// answers, recomputes visibility and validation after each input, and builds
// the submission payload.
package render

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync/atomic"
	"time"

	"github.com/chw/forms/internal/formengine/answer"
	"github.com/chw/forms/internal/formengine/question"
	"github.com/chw/forms/internal/formengine/validation"
	"github.com/chw/forms/internal/formengine/visibility"
)

// Mode is what the user is doing with the form.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
	ModeView
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeEdit:
		return "edit"
	case ModeView:
		return "view"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

var (
	ErrSubmitPending = errors.New("submission already in progress")
	ErrReadOnly      = errors.New("form is read-only")
	ErrNotReady      = errors.New("form has errors")
	ErrNoQuestion    = errors.New("no such question")
	ErrWrongInput    = errors.New("input does not fit the question type")
)

// SubmitFunc hands a finished payload to whoever stores it.
type SubmitFunc func(ctx context.Context, body answer.PostBody) error

// Session is one open form. It is not safe for concurrent use apart from
// Submit, which rejects overlapping calls.
type Session struct {
	mode      Mode
	template  question.Template
	patientID string
	lang      string

	answers   answer.Set
	stored    answer.Set
	hidden    map[int]bool
	report    validation.Report
	rejected  map[int]validation.FieldError
	attempted bool
	dropped   []int

	pending atomic.Bool
	now     func() time.Time
}

// NewSession opens t in mode. Choice answers in answers must be option text
// in the language lang resolves to. The session keeps its own copy of
// answers.
func NewSession(t question.Template, mode Mode, lang, patientID string, answers answer.Set) *Session {
	answers = maps.Clone(answers)
	if answers == nil {
		answers = answer.Set{}
	}
	s := &Session{
		mode:      mode,
		template:  t.Clone(),
		patientID: patientID,
		lang:      question.Resolve(t.Languages, lang),
		answers:   answers,
		stored:    answers,
		rejected:  make(map[int]validation.FieldError),
		now:       time.Now,
	}
	question.SortByOrder(s.template.Questions)
	s.recompute()
	return s
}

func (s *Session) Mode() Mode                  { return s.mode }
func (s *Session) Language() string            { return s.lang }
func (s *Session) Answers() answer.Set         { return s.answers }
func (s *Session) Report() validation.Report   { return s.report }
func (s *Session) Template() question.Template { return s.template.Clone() }
func (s *Session) Hidden(order int) bool       { return s.hidden[order] }
func (s *Session) Pending() bool               { return s.pending.Load() }

// Dropped returns the question orders the last submission could not map.
func (s *Session) Dropped() []int { return s.dropped }

// SetLanguage switches the display language. Selected options are carried
// over by id so the selection survives the switch.
func (s *Session) SetLanguage(lang string) {
	next := question.Resolve(s.template.Languages, lang)
	if next == s.lang {
		return
	}
	translated := make(answer.Set, len(s.answers))
	for order, v := range s.answers {
		c, ok := v.(answer.Choice)
		q, found := question.Find(s.template.Questions, order)
		if !ok || !found {
			translated[order] = v
			continue
		}
		var out answer.Choice
		for _, text := range c {
			if id, ok := q.OptionID(s.lang, text); ok {
				if t, ok := q.OptionText(next, id); ok {
					out = append(out, t)
				}
			}
		}
		translated[order] = out
	}
	s.answers = translated
	s.lang = next
	s.recompute()
}

// -- Input --

// SetChoice selects text on a single-choice question.
func (s *Session) SetChoice(order int, text string) error {
	q, err := s.input(order, question.TypeMultipleChoice)
	if err != nil {
		return err
	}
	if _, ok := q.OptionID(s.lang, text); !ok {
		return fmt.Errorf("question %d has no option %q: %w", order, text, ErrWrongInput)
	}
	s.set(order, answer.Choice{text})
	return nil
}

// ToggleOption flips text on a multi-select question.
func (s *Session) ToggleOption(order int, text string) error {
	q, err := s.input(order, question.TypeMultipleSelect)
	if err != nil {
		return err
	}
	if _, ok := q.OptionID(s.lang, text); !ok {
		return fmt.Errorf("question %d has no option %q: %w", order, text, ErrWrongInput)
	}
	current, _ := s.answers.Get(order).(answer.Choice)
	s.set(order, current.Toggle(text))
	return nil
}

// SetText updates a string answer. Input longer than the maximum length is
// clipped. Input with more lines than allowed is rejected: the previous
// value stays and the question carries an error until a valid edit arrives.
func (s *Session) SetText(order int, text string) error {
	q, err := s.input(order, question.TypeString)
	if err != nil {
		return err
	}
	text = validation.Clip(q, text)
	if q.StringMaxLines != nil && validation.LineCount(text) > *q.StringMaxLines {
		s.rejected[order] = validation.FieldError{
			QuestionOrder: order,
			Code:          validation.CodeTooManyLines,
			Message:       "exceeds maximum number of lines",
		}
		s.recompute()
		return nil
	}
	delete(s.rejected, order)
	s.set(order, answer.Text(text))
	return nil
}

// SetNumber updates an integer answer from raw input.
func (s *Session) SetNumber(order int, raw string) error {
	if _, err := s.input(order, question.TypeInteger); err != nil {
		return err
	}
	s.set(order, answer.ParseNumber(raw))
	return nil
}

// SetDate updates a date or date-time answer.
func (s *Session) SetDate(order int, t time.Time) error {
	if _, err := s.input(order, question.TypeDate, question.TypeDateTime); err != nil {
		return err
	}
	s.set(order, answer.Moment(t))
	return nil
}

// Clear blanks an answer.
func (s *Session) Clear(order int) error {
	if s.mode == ModeView {
		return ErrReadOnly
	}
	delete(s.rejected, order)
	s.answers = s.answers.Without(order)
	s.recompute()
	return nil
}

func (s *Session) input(order int, types ...question.Type) (question.Question, error) {
	if s.mode == ModeView {
		return question.Question{}, ErrReadOnly
	}
	q, ok := question.Find(s.template.Questions, order)
	if !ok {
		return q, fmt.Errorf("question %d: %w", order, ErrNoQuestion)
	}
	for _, t := range types {
		if q.Type == t {
			return q, nil
		}
	}
	return q, fmt.Errorf("question %d is %s: %w", order, q.Type, ErrWrongInput)
}

func (s *Session) set(order int, v answer.Value) {
	s.answers = s.answers.With(order, v)
	s.recompute()
}

// recompute runs visibility then validation against the current answers.
func (s *Session) recompute() {
	s.hidden = visibility.ComputeHidden(s.template.Questions, s.answers, s.lang)
	s.report = validation.Response(s.template.Questions, s.answers, s.hidden, s.now())
	if len(s.rejected) == 0 {
		return
	}

	// A rejected edit outranks whatever the retained value would report.
	errs := s.report.Errors[:0]
	for _, e := range s.report.Errors {
		if _, ok := s.rejected[e.QuestionOrder]; !ok {
			errs = append(errs, e)
		}
	}
	for order, e := range s.rejected {
		if !s.hidden[order] {
			errs = append(errs, e)
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].QuestionOrder < errs[j].QuestionOrder })
	s.report.Errors = errs
}

// -- Submission --

// CanSubmit reports whether the submit control should be enabled.
func (s *Session) CanSubmit() bool {
	return s.mode != ModeView && !s.pending.Load() && !s.report.Blocking()
}

// Submit validates the form and passes the payload to fn. The first call
// reveals errors about blank answers. While fn runs further calls fail with
// ErrSubmitPending. If fn fails the answers are kept for a retry.
func (s *Session) Submit(ctx context.Context, fn SubmitFunc) error {
	if s.mode == ModeView {
		return ErrReadOnly
	}
	if !s.pending.CompareAndSwap(false, true) {
		return ErrSubmitPending
	}
	defer s.pending.Store(false)

	s.attempted = true
	s.recompute()
	if !s.report.Ready() {
		return fmt.Errorf("%d question(s) need attention: %w", len(s.report.Errors), ErrNotReady)
	}

	body := s.Payload()
	if err := fn(ctx, body); err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	return nil
}

// Payload builds the submission body for the current answers. Hidden
// questions are sent blank. An edit also sends a blank delta for every
// stored answer the user cleared.
func (s *Session) Payload() answer.PostBody {
	visible := s.answers.Exclude(s.hidden)
	api, dropped := answer.ToAPIAnswers(visible, s.template.Questions, s.lang)
	s.dropped = dropped

	if s.mode == ModeEdit {
		for _, q := range s.template.Questions {
			if _, sent := visible[q.Order]; sent || !q.Type.Answerable() {
				continue
			}
			if !answer.IsBlank(s.stored.Get(q.Order)) || !answer.IsBlank(s.answers.Get(q.Order)) {
				api = append(api, answer.APIAnswer{QuestionOrder: q.Order})
			}
		}
	}
	return answer.ToPostBody(api, s.template, s.patientID, s.mode == ModeEdit)
}
