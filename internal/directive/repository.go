package directive

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// Repository defines the directive registry storage contract
type Repository interface {
	Create(ctx context.Context, directive *Directive) error
	GetByID(ctx context.Context, id types.ID) (*Directive, error)
	ListByPatient(ctx context.Context, patientHash string) ([]*Directive, error)
	FindActiveByType(ctx context.Context, patientHash string, directiveType classification.DirectiveType) (*Directive, error)
	UpdateStatus(ctx context.Context, id types.ID, status Status) error
	ListForReview(ctx context.Context, limit int) ([]*Directive, error)
}

// PostgresRepository provides database operations for the directive registry
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new directive repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const directiveColumns = `
	id, patient_hash, directive_type, directive_text,
	conditions, contraindications, confidence, legal_validity,
	tier, requires_review, status, retention_until,
	created_at, updated_at`

// Create inserts a directive. A previous active directive of the same
// type for the patient is superseded in the same transaction.
func (r *PostgresRepository) Create(ctx context.Context, directive *Directive) error {
	conditions, err := json.Marshal(directive.Conditions)
	if err != nil {
		return errors.Wrap(err, "failed to encode conditions")
	}
	contraindications, err := json.Marshal(directive.Contraindications)
	if err != nil {
		return errors.Wrap(err, "failed to encode contraindications")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE directives
		SET status = $1, updated_at = NOW()
		WHERE patient_hash = $2 AND directive_type = $3 AND status = $4`,
		StatusSuperseded, directive.PatientHash, directive.Type, StatusActive,
	)
	if err != nil {
		return errors.Wrap(err, "failed to supersede previous directive")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO directives (
			id, patient_hash, directive_type, directive_text,
			conditions, contraindications, confidence, legal_validity,
			tier, requires_review, status, retention_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		directive.ID, directive.PatientHash, directive.Type, directive.Text,
		conditions, contraindications, directive.Confidence, directive.LegalValidity,
		directive.Tier, directive.RequiresReview, directive.Status, directive.RetentionUntil,
		directive.CreatedAt, directive.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create directive")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit directive")
	}
	return nil
}

// GetByID retrieves a directive by ID
func (r *PostgresRepository) GetByID(ctx context.Context, id types.ID) (*Directive, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+directiveColumns+` FROM directives WHERE id = $1`, id)

	directive, err := scanDirective(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("directive", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get directive")
	}
	return directive, nil
}

// ListByPatient returns all directives for a patient, newest first
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientHash string) ([]*Directive, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+directiveColumns+`
		FROM directives
		WHERE patient_hash = $1
		ORDER BY created_at DESC`, patientHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list directives")
	}
	defer rows.Close()

	return scanDirectives(rows)
}

// FindActiveByType returns the active directive of one type for a patient
func (r *PostgresRepository) FindActiveByType(ctx context.Context, patientHash string, directiveType classification.DirectiveType) (*Directive, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+directiveColumns+`
		FROM directives
		WHERE patient_hash = $1 AND directive_type = $2 AND status = $3 AND retention_until > NOW()
		ORDER BY created_at DESC
		LIMIT 1`, patientHash, directiveType, StatusActive)

	directive, err := scanDirective(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("directive", string(directiveType))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find directive")
	}
	return directive, nil
}

// UpdateStatus sets the lifecycle status of a directive
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id types.ID, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE directives SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return errors.Wrap(err, "failed to update directive status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("directive", id.String())
	}
	return nil
}

// ListForReview returns active directives flagged for human review
func (r *PostgresRepository) ListForReview(ctx context.Context, limit int) ([]*Directive, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+directiveColumns+`
		FROM directives
		WHERE requires_review = TRUE AND status = $1
		ORDER BY created_at ASC
		LIMIT $2`, StatusActive, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list review queue")
	}
	defer rows.Close()

	return scanDirectives(rows)
}

func scanDirective(row pgx.Row) (*Directive, error) {
	directive := &Directive{}
	var conditions, contraindications []byte

	err := row.Scan(
		&directive.ID, &directive.PatientHash, &directive.Type, &directive.Text,
		&conditions, &contraindications, &directive.Confidence, &directive.LegalValidity,
		&directive.Tier, &directive.RequiresReview, &directive.Status, &directive.RetentionUntil,
		&directive.CreatedAt, &directive.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditions, &directive.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(contraindications, &directive.Contraindications); err != nil {
		return nil, err
	}
	return directive, nil
}

func scanDirectives(rows pgx.Rows) ([]*Directive, error) {
	var directives []*Directive
	for rows.Next() {
		directive, err := scanDirective(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan directive")
		}
		directives = append(directives, directive)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read directives")
	}
	return directives, nil
}
