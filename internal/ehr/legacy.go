package ehr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/echoledger/platform/internal/shared/config"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// LegacyAdapter connects to a legacy hospital information system over
// SQL Server. Older HIS deployments have no FHIR facade, so the adapter
// reads the patient master table directly and mirrors directive status
// into a dedicated table the HIS reporting layer picks up.
type LegacyAdapter struct {
	db       *sql.DB
	database string
}

func NewLegacyAdapter(cfg config.EHRConfig) (*LegacyAdapter, error) {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.LegacyHost, cfg.LegacyPort, cfg.LegacyDatabase, cfg.LegacyUser, cfg.LegacyPassword)

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open HIS connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return &LegacyAdapter{db: db, database: cfg.LegacyDatabase}, nil
}

func (a *LegacyAdapter) SourceSystem() string { return "legacy" }

func (a *LegacyAdapter) FetchPatientSummary(ctx context.Context, patient types.PatientRef) (*PatientSummary, error) {
	query := `
		SELECT PatientID, IsActive, FamilyName, GivenName, Gender,
		       CONVERT(VARCHAR(10), BirthDate, 23), MRN
		FROM dbo.Patients
		WHERE PatientID = @p1`

	var summary PatientSummary
	err := a.db.QueryRowContext(ctx, query, patient.String()).Scan(
		&summary.ID,
		&summary.Active,
		&summary.FamilyName,
		&summary.GivenName,
		&summary.Gender,
		&summary.BirthDate,
		&summary.MedicalRecordNumber,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("patient", patient.Hash())
	}
	if err != nil {
		return nil, errors.ExternalUnavailable("legacy-his", err)
	}
	return &summary, nil
}

func (a *LegacyAdapter) PushDirectiveStatus(ctx context.Context, patientHash string, update DirectiveStatusUpdate) error {
	query := `
		MERGE dbo.DirectiveStatus AS target
		USING (SELECT @p1 AS PatientHash, @p2 AS DirectiveType) AS source
		ON target.PatientHash = source.PatientHash AND target.DirectiveType = source.DirectiveType
		WHEN MATCHED THEN
			UPDATE SET Status = @p3, Reference = @p4, UpdatedAt = @p5
		WHEN NOT MATCHED THEN
			INSERT (PatientHash, DirectiveType, Status, Reference, UpdatedAt)
			VALUES (@p1, @p2, @p3, @p4, @p5);`

	_, err := a.db.ExecContext(ctx, query,
		patientHash, update.DirectiveType, update.Status,
		update.Reference, update.UpdatedAt)
	if err != nil {
		return errors.ExternalUnavailable("legacy-his", err)
	}
	return nil
}

func (a *LegacyAdapter) Health(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return errors.ExternalUnavailable("legacy-his", err)
	}
	return nil
}

func (a *LegacyAdapter) Close() error {
	return a.db.Close()
}
