package forms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chw/forms/internal/formengine/answer"
	"github.com/chw/forms/internal/formengine/ordering"
	"github.com/chw/forms/internal/formengine/question"
	"github.com/chw/forms/internal/formengine/render"
	"github.com/chw/forms/internal/formengine/validation"
	"github.com/chw/forms/internal/formengine/visibility"
	"github.com/chw/forms/internal/formengine/wire"
	"github.com/chw/forms/internal/platform/db"
)

// ValidationError carries the engine's findings for a rejected template or
// response. It matches ErrInvalid.
type ValidationError struct {
	Message      string                   `json:"message"`
	SchemaErrors []validation.SchemaError `json:"schemaErrors,omitempty"`
	FieldErrors  []validation.FieldError  `json:"fieldErrors,omitempty"`
}

func (e *ValidationError) Error() string {
	n := len(e.SchemaErrors) + len(e.FieldErrors)
	return fmt.Sprintf("%s: %d problem(s)", e.Message, n)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Service struct {
	templates   TemplateRepository
	responses   ResponseRepository
	withTx      func(ctx context.Context, fn func(ctx context.Context) error) error
	defaultLang string
	logger      zerolog.Logger
	metrics     Recorder
	now         func() time.Time
}

// Recorder counts form operations by outcome.
type Recorder interface {
	Operation(name, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Operation(string, string) {}

// NewService wires the repositories. With a nil beginner (tests, tooling)
// multi-step writes run without a transaction.
func NewService(templates TemplateRepository, responses ResponseRepository, b db.Beginner, defaultLang string, logger zerolog.Logger) *Service {
	s := &Service{
		templates:   templates,
		responses:   responses,
		defaultLang: defaultLang,
		logger:      logger.With().Str("component", "forms").Logger(),
		metrics:     nopRecorder{},
		now:         time.Now,
	}
	if b != nil {
		s.withTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, b, fn)
		}
	} else {
		s.withTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return s
}

func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.metrics = r
}

func (s *Service) observe(op string, err *error) {
	outcome := "ok"
	switch {
	case *err == nil:
	case errors.Is(*err, ErrInvalid):
		outcome = "invalid"
	case errors.Is(*err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	s.metrics.Operation(op, outcome)
}

// -- Templates --

// CheckTemplate applies the authoring rules to a wire template.
func CheckTemplate(in wire.Template) (question.Template, error) {
	if strings.TrimSpace(in.Classification.Name) == "" && in.Classification.ID == "" {
		return question.Template{}, invalid("classification name is required")
	}
	model := wire.ToModel(in)
	if errs := validation.Template(model); len(errs) > 0 {
		return model, &ValidationError{Message: "template is not valid", SchemaErrors: errs}
	}
	// stored in position order
	model.Questions = ordering.Normalize(model.Questions)
	return model, nil
}

// CreateTemplate stores in as the next version of its classification.
func (s *Service) CreateTemplate(ctx context.Context, in wire.Template, createdBy string) (_ *Template, err error) {
	defer s.observe("template.create", &err)
	model, err := CheckTemplate(in)
	if err != nil {
		return nil, err
	}

	canonical := wire.FromModel(model)
	for i := range canonical.Questions {
		canonical.Questions[i].ID = ""
	}
	t := &Template{
		Languages: canonical.Languages,
		Questions: canonical.Questions,
		CreatedBy: createdBy,
	}

	err = s.withTx(ctx, func(ctx context.Context) error {
		id, name, err := s.templates.ResolveClassification(ctx, in.Classification)
		if err != nil {
			return fmt.Errorf("classification: %w", err)
		}
		t.ClassificationID, t.ClassificationName = id, name
		if t.Version, err = s.templates.NextVersion(ctx, id); err != nil {
			return fmt.Errorf("next version: %w", err)
		}
		return s.templates.Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("template_id", t.ID.String()).
		Str("classification", t.ClassificationName).
		Int("version", t.Version).
		Int("questions", len(t.Questions)).
		Msg("form template stored")
	return t, nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, f TemplateFilter, limit, offset int) ([]*Template, int, error) {
	return s.templates.List(ctx, f, limit, offset)
}

func (s *Service) ArchiveTemplate(ctx context.Context, id uuid.UUID, archived bool) error {
	if err := s.templates.SetArchived(ctx, id, archived); err != nil {
		return err
	}
	s.logger.Info().Str("template_id", id.String()).Bool("archived", archived).Msg("form template archive state changed")
	return nil
}

// RenderTemplate lays out a blank form. The language is the explicit one,
// then the best Accept-Language match, then the configured default.
func (s *Service) RenderTemplate(ctx context.Context, id uuid.UUID, lang, acceptLanguage string) (*RenderedForm, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	model := t.Model()
	resolved := question.ResolveAccept(model.Languages, lang, acceptLanguage, s.defaultLang)
	session := render.NewSession(model, render.ModeCreate, resolved, "", nil)
	return &RenderedForm{
		TemplateID: t.ID.String(),
		Version:    model.Version,
		Language:   session.Language(),
		Languages:  model.Languages,
		Fields:     session.Fields(),
	}, nil
}

// -- Responses --

// evaluate runs the engine over submitted answers: it rejects option ids the
// question does not define, computes visibility, validates, and returns the
// canonical payload per question order with hidden questions blanked.
// evaluate validates api against model and returns the answers to store.
// When touched is non-nil, date range rules apply only to the questions in
// it, so a stored date does not expire as the calendar moves on.
func (s *Service) evaluate(model question.Template, api []answer.APIAnswer, langs []string, touched map[int]bool) (map[int]wire.Answers, error) {
	lang := question.Resolve(model.Languages, langs...)

	for _, a := range api {
		q, ok := question.Find(model.Questions, a.QuestionOrder)
		if !ok {
			return nil, invalid("question %d is not part of the form", a.QuestionOrder)
		}
		if err := checkOptionIDs(q, a.Answer.MCIDArray); err != nil {
			return nil, err
		}
	}

	set := answer.FromAPIAnswers(api, model.Questions, lang)
	hidden := visibility.ComputeHidden(model.Questions, set, lang)
	report := validation.Response(model.Questions, set, hidden, s.now())
	if touched != nil {
		report.Errors = skipSettledDates(report.Errors, touched)
	}
	if !report.Ready() {
		return nil, &ValidationError{Message: "response is not valid", FieldErrors: report.Errors}
	}

	canonical, dropped := answer.ToAPIAnswers(set.Exclude(hidden), model.Questions, lang)
	if len(dropped) > 0 {
		s.logger.Warn().Str("template_id", model.ID).Ints("questions", dropped).Msg("answers dropped during transform")
	}
	out := make(map[int]wire.Answers, len(canonical))
	for _, a := range canonical {
		out[a.QuestionOrder] = a.Answer
	}
	return out, nil
}

func skipSettledDates(errs []validation.FieldError, touched map[int]bool) []validation.FieldError {
	out := errs[:0]
	for _, e := range errs {
		dated := e.Code == validation.CodeFutureDate || e.Code == validation.CodePastDate
		if dated && !touched[e.QuestionOrder] {
			continue
		}
		out = append(out, e)
	}
	return out
}

func checkOptionIDs(q question.Question, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if !q.Type.IsChoice() {
		return invalid("question %d does not take options", q.Order)
	}
	known := make(map[int]bool)
	for _, id := range q.OptionIDs() {
		known[id] = true
	}
	for _, id := range ids {
		if !known[id] {
			return invalid("question %d has no option %d", q.Order, id)
		}
	}
	if q.Type == question.TypeMultipleChoice && len(ids) > 1 {
		return invalid("question %d accepts a single option", q.Order)
	}
	return nil
}

// CreateResponse validates a create body against its template and stores it.
func (s *Service) CreateResponse(ctx context.Context, body wire.CreateBody, createdBy string) (_ *Response, err error) {
	defer s.observe("response.create", &err)
	if strings.TrimSpace(body.PatientID) == "" {
		return nil, invalid("patientId is required")
	}
	templateID, err := uuid.Parse(body.FormTemplateID)
	if err != nil {
		return nil, invalid("formTemplateId is required")
	}
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("form template: %w", err)
	}
	if t.Archived {
		return nil, invalid("form template %s is archived", t.ID)
	}

	model := t.Model()
	answers, err := s.evaluate(model, answer.FromResponse(body.Questions), body.Languages, nil)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		TemplateID:         t.ID,
		PatientID:          body.PatientID,
		Version:            t.Version,
		ClassificationID:   t.ClassificationID,
		ClassificationName: t.ClassificationName,
		Languages:          t.Languages,
		CreatedBy:          createdBy,
	}
	for _, q := range t.Questions {
		a := answers[q.QuestionIndex]
		resp.Questions = append(resp.Questions, QuestionResponse{Question: q, Answers: a, IsBlank: a.Empty()})
	}

	if err := s.withTx(ctx, func(ctx context.Context) error {
		return s.responses.Create(ctx, resp)
	}); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("response_id", resp.ID.String()).
		Str("template_id", t.ID.String()).
		Str("patient_id", resp.PatientID).
		Int("answered", len(answers)).
		Msg("form response stored")
	return resp, nil
}

func (s *Service) GetResponse(ctx context.Context, id uuid.UUID) (*Response, error) {
	return s.responses.GetByID(ctx, id)
}

func (s *Service) ListResponses(ctx context.Context, patientID string, limit, offset int) ([]*Response, int, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, 0, invalid("patient_id is required")
	}
	return s.responses.ListByPatient(ctx, patientID, limit, offset)
}

// UpdateResponse applies edit deltas. The merged answers are validated as a
// whole, except that date range rules only bind the edited questions.
// Questions hidden by the new answers are cleared.
func (s *Service) UpdateResponse(ctx context.Context, id uuid.UUID, deltas []wire.EditDelta) (_ *Response, err error) {
	defer s.observe("response.update", &err)
	resp, err := s.responses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(resp.Questions))
	current := make(map[int]wire.Answers, len(resp.Questions))
	touched := make(map[int]bool, len(deltas))
	for i, qr := range resp.Questions {
		byID[qr.ID.String()] = i
		if !qr.IsBlank {
			current[qr.Question.QuestionIndex] = qr.Answers
		}
	}
	for _, d := range deltas {
		i, ok := byID[d.ID]
		if !ok {
			return nil, invalid("unknown question response %q", d.ID)
		}
		order := resp.Questions[i].Question.QuestionIndex
		touched[order] = true
		if d.Answers.Empty() {
			delete(current, order)
		} else {
			current[order] = d.Answers
		}
	}

	api := make([]answer.APIAnswer, 0, len(current))
	for order, a := range current {
		api = append(api, answer.APIAnswer{QuestionOrder: order, Answer: a})
	}
	sort.Slice(api, func(i, j int) bool { return api[i].QuestionOrder < api[j].QuestionOrder })

	answers, err := s.evaluate(resp.Model(), api, resp.Languages, touched)
	if err != nil {
		return nil, err
	}

	var changed []QuestionResponse
	for i := range resp.Questions {
		qr := &resp.Questions[i]
		next := answers[qr.Question.QuestionIndex]
		if sameAnswers(qr.Answers, next) && qr.IsBlank == next.Empty() {
			continue
		}
		qr.Answers, qr.IsBlank = next, next.Empty()
		changed = append(changed, *qr)
	}
	if len(changed) == 0 {
		return resp, nil
	}

	if err := s.withTx(ctx, func(ctx context.Context) error {
		return s.responses.UpdateAnswers(ctx, resp.ID, changed)
	}); err != nil {
		return nil, err
	}
	resp.UpdatedAt = s.now()

	s.logger.Info().Str("response_id", resp.ID.String()).Int("changed", len(changed)).Msg("form response edited")
	return resp, nil
}

func sameAnswers(a, b wire.Answers) bool {
	if len(a.MCIDArray) != len(b.MCIDArray) {
		return false
	}
	for i := range a.MCIDArray {
		if a.MCIDArray[i] != b.MCIDArray[i] {
			return false
		}
	}
	switch {
	case (a.Text == nil) != (b.Text == nil):
		return false
	case a.Text != nil && *a.Text != *b.Text:
		return false
	case (a.Number == nil) != (b.Number == nil):
		return false
	case a.Number != nil && *a.Number != *b.Number:
		return false
	}
	return true
}
