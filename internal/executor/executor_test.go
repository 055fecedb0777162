package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/directive"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/types"
)

var testInstitutions = []string{
	"National Cancer Institute",
	"Memorial Sloan Kettering Cancer Center",
	"MD Anderson Cancer Center",
}

type recordingNotifier struct {
	notified []RecipientMatch
	fail     bool
}

func (n *recordingNotifier) Notify(ctx context.Context, match RecipientMatch) error {
	if n.fail {
		return context.DeadlineExceeded
	}
	n.notified = append(n.notified, match)
	return nil
}

func seedConsent(t *testing.T, repo directive.Repository, patientID string, directiveType classification.DirectiveType) types.PatientRef {
	t.Helper()

	patient, err := types.NewPatientRef(patientID)
	if err != nil {
		t.Fatalf("Failed to create patient ref: %v", err)
	}

	extracted := classification.ExtractedDirective{
		DirectiveType: directiveType,
		Confidence:    0.9,
	}
	analysis := classification.DirectiveAnalysis{
		ConfidenceScore:     0.9,
		ExtractedDirectives: []classification.ExtractedDirective{extracted},
		LegalValidityScore:  0.8,
		ProcessingTier:      classification.TierLocal,
	}

	record, err := directive.NewDirective(patient, "consent on file", extracted, analysis, directive.MaxRetention)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}
	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return patient
}

func newTestService(repo directive.Repository, notifier CenterNotifier) *Service {
	return NewService(repo, RegistryDeathVerifier{}, notifier, events.NoopBus{}, testInstitutions)
}

func TestMatchOrderingWeighsUrgency(t *testing.T) {
	matches := findOptimalRecipients(assessOrganViability())

	if len(matches) != 4 {
		t.Fatalf("Expected 4 matches, got %d", len(matches))
	}

	// kidney_left: 0.97 * 3 = 2.91; kidney_right: 0.94 * 3 = 2.82;
	// liver: 0.91 * 2 = 1.82; corneas: 0.99 * 1 = 0.99.
	// The highest raw compatibility (corneas, 0.99) must sort last
	// because it is the least urgent.
	expected := []string{"kidney_left", "kidney_right", "liver", "corneas"}
	for i, want := range expected {
		if matches[i].Organ != want {
			t.Errorf("Position %d: expected '%s', got '%s'", i, want, matches[i].Organ)
		}
	}
}

func TestExecuteOrganDonation(t *testing.T) {
	repo := directive.NewMemoryRepository()
	notifier := &recordingNotifier{}
	service := newTestService(repo, notifier)

	patient := seedConsent(t, repo, "patient-ex-001", classification.DirectiveOrganDonation)

	result, err := service.Execute(context.Background(), patient)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(result.DirectivesExecuted) != 1 {
		t.Fatalf("Expected 1 executed directive, got %d", len(result.DirectivesExecuted))
	}

	execution := result.DirectivesExecuted[0]
	if execution.DirectiveType != classification.DirectiveOrganDonation {
		t.Errorf("Expected 'ORGAN_DONATION', got '%s'", execution.DirectiveType)
	}
	if execution.Status != ExecutionCompleted {
		t.Errorf("Expected 'COMPLETED', got '%s'", execution.Status)
	}
	if execution.TotalRecipientsNotified != 4 {
		t.Errorf("Expected 4 notified, got %d", execution.TotalRecipientsNotified)
	}
	// Lives saved counts notified recipients at urgency 1 or 2:
	// both kidneys and the liver, not the corneas
	if execution.EstimatedLivesSaved != 3 {
		t.Errorf("Expected 3 lives saved, got %d", execution.EstimatedLivesSaved)
	}
	if len(notifier.notified) != 4 {
		t.Errorf("Expected 4 notifications, got %d", len(notifier.notified))
	}
}

func TestExecuteDataSharing(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := newTestService(repo, &recordingNotifier{})

	patient := seedConsent(t, repo, "patient-ex-002", classification.DirectiveDataConsent)

	result, err := service.Execute(context.Background(), patient)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(result.DirectivesExecuted) != 1 {
		t.Fatalf("Expected 1 executed directive, got %d", len(result.DirectivesExecuted))
	}

	execution := result.DirectivesExecuted[0]
	if execution.DirectiveType != classification.DirectiveDataConsent {
		t.Errorf("Expected 'DATA_CONSENT', got '%s'", execution.DirectiveType)
	}
	if len(execution.DataSharedWith) != len(testInstitutions) {
		t.Errorf("Expected data shared with %d institutions, got %d", len(testInstitutions), len(execution.DataSharedWith))
	}
	if !execution.AnonymizationVerified {
		t.Error("Expected anonymization to be verified")
	}
}

func TestExecuteSkipsNonConsentedTypes(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := newTestService(repo, &recordingNotifier{})

	// DNR is not an executable post-mortem directive
	patient := seedConsent(t, repo, "patient-ex-003", classification.DirectiveDNR)

	result, err := service.Execute(context.Background(), patient)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.DirectivesExecuted) != 0 {
		t.Errorf("Expected no executed directives, got %d", len(result.DirectivesExecuted))
	}
}

func TestExecuteIgnoresRevokedConsent(t *testing.T) {
	repo := directive.NewMemoryRepository()
	notifier := &recordingNotifier{}
	service := newTestService(repo, notifier)

	patient := seedConsent(t, repo, "patient-ex-004", classification.DirectiveOrganDonation)

	directives, err := repo.ListByPatient(context.Background(), patient.Hash())
	if err != nil {
		t.Fatalf("ListByPatient failed: %v", err)
	}
	if err := repo.UpdateStatus(context.Background(), directives[0].ID, directive.StatusRevoked); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	result, err := service.Execute(context.Background(), patient)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.DirectivesExecuted) != 0 {
		t.Errorf("Expected revoked consent to be skipped, got %d executions", len(result.DirectivesExecuted))
	}
	if len(notifier.notified) != 0 {
		t.Errorf("Expected no notifications, got %d", len(notifier.notified))
	}
}

type unavailableRepository struct{}

func (unavailableRepository) Create(ctx context.Context, d *directive.Directive) error {
	return errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) GetByID(ctx context.Context, id types.ID) (*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) ListByPatient(ctx context.Context, patientHash string) ([]*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) FindActiveByType(ctx context.Context, patientHash string, directiveType classification.DirectiveType) (*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) UpdateStatus(ctx context.Context, id types.ID, status directive.Status) error {
	return errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) ListForReview(ctx context.Context, limit int) ([]*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func TestExecuteSurfacesRegistryOutage(t *testing.T) {
	notifier := &recordingNotifier{}
	service := newTestService(unavailableRepository{}, notifier)

	patient, err := types.NewPatientRef("patient-ex-outage")
	if err != nil {
		t.Fatalf("Failed to create patient ref: %v", err)
	}

	result, err := service.Execute(context.Background(), patient)
	if err == nil {
		t.Fatal("Expected error when the directive registry is unreachable")
	}
	if !errors.IsExternalUnavailable(err) {
		t.Errorf("Expected external unavailable error, got %v", err)
	}
	if result != nil {
		t.Error("Expected no execution result during an outage")
	}
	if len(notifier.notified) != 0 {
		t.Errorf("Expected no notifications during an outage, got %d", len(notifier.notified))
	}
}

func TestExecuteNotificationFailureCountsNoLives(t *testing.T) {
	repo := directive.NewMemoryRepository()
	notifier := &recordingNotifier{fail: true}
	service := newTestService(repo, notifier)

	patient := seedConsent(t, repo, "patient-ex-005", classification.DirectiveOrganDonation)

	result, err := service.Execute(context.Background(), patient)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	execution := result.DirectivesExecuted[0]
	if execution.TotalRecipientsNotified != 0 {
		t.Errorf("Expected 0 notified, got %d", execution.TotalRecipientsNotified)
	}
	if execution.EstimatedLivesSaved != 0 {
		t.Errorf("Expected 0 lives saved, got %d", execution.EstimatedLivesSaved)
	}
}

func TestExecutionHistory(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := newTestService(repo, &recordingNotifier{})

	patient := seedConsent(t, repo, "patient-ex-006", classification.DirectiveDataConsent)

	result, err := service.Execute(context.Background(), patient)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, err := service.Get(result.ExecutionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.PatientHash != patient.Hash() {
		t.Error("Expected stored execution to reference the patient hash")
	}

	if history := service.History(); len(history) != 1 {
		t.Errorf("Expected 1 execution in history, got %d", len(history))
	}

	if _, err := service.Get(types.NewID()); err == nil {
		t.Error("Expected error for unknown execution ID")
	}
}
