package forms

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/chw/forms/internal/formengine/wire"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

type TemplateFilter struct {
	ClassificationID *uuid.UUID
	IncludeArchived  bool
}

type TemplateRepository interface {
	// ResolveClassification returns the classification with c's id, or the
	// one named c.Name, creating it when absent.
	ResolveClassification(ctx context.Context, c wire.Classification) (uuid.UUID, string, error)
	NextVersion(ctx context.Context, classificationID uuid.UUID) (int, error)
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	List(ctx context.Context, f TemplateFilter, limit, offset int) ([]*Template, int, error)
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
}

type ResponseRepository interface {
	// Create assigns ids to r and each of its questions.
	Create(ctx context.Context, r *Response) error
	GetByID(ctx context.Context, id uuid.UUID) (*Response, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Response, int, error)
	UpdateAnswers(ctx context.Context, responseID uuid.UUID, qs []QuestionResponse) error
}
