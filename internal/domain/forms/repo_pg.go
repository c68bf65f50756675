package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chw/forms/internal/formengine/wire"
	"github.com/chw/forms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// -- Templates --

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepoPG{pool: pool}
}

const tmplCols = `t.id, t.classification_id, c.name, t.version, t.languages, t.questions,
	t.archived, COALESCE(t.created_by, ''), t.created_at`

const tmplFrom = ` FROM form_template t JOIN form_classification c ON c.id = t.classification_id`

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.ClassificationID, &t.ClassificationName, &t.Version, &t.Languages,
		&t.Questions, &t.Archived, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *templateRepoPG) ResolveClassification(ctx context.Context, c wire.Classification) (uuid.UUID, string, error) {
	q := conn(ctx, r.pool)
	if c.ID != "" {
		id, err := uuid.Parse(c.ID)
		if err != nil {
			return uuid.Nil, "", fmt.Errorf("%w: classification id %q", ErrInvalid, c.ID)
		}
		var name string
		err = q.QueryRow(ctx, `SELECT name FROM form_classification WHERE id = $1`, id).Scan(&name)
		if err != nil {
			return uuid.Nil, "", notFound(err)
		}
		return id, name, nil
	}

	var id uuid.UUID
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := q.QueryRow(ctx, `
		INSERT INTO form_classification (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, uuid.New(), c.Name).Scan(&id)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("resolve classification: %w", err)
	}
	return id, c.Name, nil
}

func (r *templateRepoPG) NextVersion(ctx context.Context, classificationID uuid.UUID) (int, error) {
	var next int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM form_template WHERE classification_id = $1`,
		classificationID).Scan(&next)
	return next, err
}

func (r *templateRepoPG) Create(ctx context.Context, t *Template) error {
	t.ID = uuid.New()
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO form_template (id, classification_id, version, languages, questions, archived, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		t.ID, t.ClassificationID, t.Version, t.Languages, t.Questions, t.Archived, t.CreatedBy,
	).Scan(&t.CreatedAt)
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	return scanTemplate(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+tmplCols+tmplFrom+` WHERE t.id = $1`, id))
}

func (r *templateRepoPG) List(ctx context.Context, f TemplateFilter, limit, offset int) ([]*Template, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.ClassificationID != nil {
		where += fmt.Sprintf(` AND t.classification_id = $%d`, idx)
		args = append(args, *f.ClassificationID)
		idx++
	}
	if !f.IncludeArchived {
		where += ` AND NOT t.archived`
	}

	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*)`+tmplFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + tmplCols + tmplFrom + where +
		fmt.Sprintf(` ORDER BY c.name, t.version DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *templateRepoPG) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `UPDATE form_template SET archived = $2 WHERE id = $1`, id, archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Responses --

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepoPG{pool: pool}
}

const respCols = `r.id, r.template_id, r.patient_id, t.version, t.classification_id, c.name,
	r.languages, COALESCE(r.created_by, ''), r.created_at, r.updated_at`

const respFrom = ` FROM form_response r
	JOIN form_template t ON t.id = r.template_id
	JOIN form_classification c ON c.id = t.classification_id`

func scanResponse(row pgx.Row) (*Response, error) {
	var r Response
	err := row.Scan(&r.ID, &r.TemplateID, &r.PatientID, &r.Version, &r.ClassificationID,
		&r.ClassificationName, &r.Languages, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (r *responseRepoPG) Create(ctx context.Context, resp *Response) error {
	q := conn(ctx, r.pool)
	resp.ID = uuid.New()
	err := q.QueryRow(ctx, `
		INSERT INTO form_response (id, template_id, patient_id, languages, created_by)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		resp.ID, resp.TemplateID, resp.PatientID, resp.Languages, resp.CreatedBy,
	).Scan(&resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert form response: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range resp.Questions {
		qr := &resp.Questions[i]
		qr.ID = uuid.New()
		batch.Queue(`
			INSERT INTO question_response (id, response_id, question_index, question, answers, is_blank)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			qr.ID, resp.ID, qr.Question.QuestionIndex, qr.Question, qr.Answers, qr.IsBlank)
	}
	return r.sendBatch(ctx, batch)
}

func (r *responseRepoPG) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	var br pgx.BatchResults
	if tx := db.TxFromContext(ctx); tx != nil {
		br = tx.SendBatch(ctx, batch)
	} else {
		br = r.pool.SendBatch(ctx, batch)
	}
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("question response %d: %w", i, err)
		}
	}
	return br.Close()
}

func (r *responseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Response, error) {
	q := conn(ctx, r.pool)
	resp, err := scanResponse(q.QueryRow(ctx, `SELECT `+respCols+respFrom+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, question, answers, is_blank FROM question_response
		WHERE response_id = $1 ORDER BY question_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var qr QuestionResponse
		if err := rows.Scan(&qr.ID, &qr.Question, &qr.Answers, &qr.IsBlank); err != nil {
			return nil, err
		}
		resp.Questions = append(resp.Questions, qr)
	}
	return resp, rows.Err()
}

// ListByPatient returns response headers without their questions.
func (r *responseRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Response, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM form_response WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+respCols+respFrom+`
		WHERE r.patient_id = $1 ORDER BY r.created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, resp)
	}
	return items, total, rows.Err()
}

func (r *responseRepoPG) UpdateAnswers(ctx context.Context, responseID uuid.UUID, qs []QuestionResponse) error {
	batch := &pgx.Batch{}
	for _, qr := range qs {
		batch.Queue(`UPDATE question_response SET answers = $3, is_blank = $4 WHERE id = $1 AND response_id = $2`,
			qr.ID, responseID, qr.Answers, qr.IsBlank)
	}
	batch.Queue(`UPDATE form_response SET updated_at = NOW() WHERE id = $1`, responseID)
	return r.sendBatch(ctx, batch)
}
