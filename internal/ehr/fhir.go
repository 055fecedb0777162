package ehr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// FHIRAdapter talks to a FHIR R4 endpoint. Patient demographics come
// from the Patient resource; directive status changes are mirrored as
// Flag resources so they show up in clinical views.
type FHIRAdapter struct {
	baseURL string
	client  *http.Client
}

func NewFHIRAdapter(baseURL string) *FHIRAdapter {
	return &FHIRAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *FHIRAdapter) SourceSystem() string { return "fhir" }

type fhirPatient struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Active       bool   `json:"active"`
	Name         []struct {
		Family string   `json:"family"`
		Given  []string `json:"given"`
	} `json:"name"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birthDate"`
	Identifier []struct {
		System string `json:"system"`
		Value  string `json:"value"`
	} `json:"identifier"`
}

func (a *FHIRAdapter) FetchPatientSummary(ctx context.Context, patient types.PatientRef) (*PatientSummary, error) {
	endpoint := fmt.Sprintf("%s/Patient/%s", a.baseURL, url.PathEscape(patient.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Internal(err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.ExternalUnavailable("fhir", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NotFound("patient", patient.Hash())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.ExternalUnavailable("fhir",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var fp fhirPatient
	if err := json.NewDecoder(resp.Body).Decode(&fp); err != nil {
		return nil, errors.ExternalUnavailable("fhir", err)
	}
	if fp.ResourceType != "Patient" {
		return nil, errors.ExternalUnavailable("fhir",
			fmt.Errorf("unexpected resource type %q", fp.ResourceType))
	}

	summary := &PatientSummary{
		ID:        fp.ID,
		Active:    fp.Active,
		Gender:    fp.Gender,
		BirthDate: fp.BirthDate,
	}
	if len(fp.Name) > 0 {
		summary.FamilyName = fp.Name[0].Family
		if len(fp.Name[0].Given) > 0 {
			summary.GivenName = fp.Name[0].Given[0]
		}
	}
	for _, id := range fp.Identifier {
		if id.System == "urn:oid:medical-record-number" || summary.MedicalRecordNumber == "" {
			summary.MedicalRecordNumber = id.Value
		}
	}
	return summary, nil
}

func (a *FHIRAdapter) PushDirectiveStatus(ctx context.Context, patientHash string, update DirectiveStatusUpdate) error {
	flagStatus := "active"
	if update.Status != "active" {
		flagStatus = "inactive"
	}
	flag := map[string]any{
		"resourceType": "Flag",
		"status":       flagStatus,
		"code": map[string]any{
			"text": fmt.Sprintf("Advance directive: %s (%s)", update.DirectiveType, update.Status),
		},
		"subject": map[string]any{
			// conditional reference keyed on the registry hash identifier
			"reference": "Patient?identifier=urn:echoledger:patient-hash|" + patientHash,
		},
		"identifier": []map[string]any{
			{"system": "urn:echoledger:directive", "value": update.Reference},
		},
	}
	body, err := json.Marshal(flag)
	if err != nil {
		return errors.Internal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/Flag", bytes.NewReader(body))
	if err != nil {
		return errors.Internal(err)
	}
	req.Header.Set("Content-Type", "application/fhir+json")

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.ExternalUnavailable("fhir", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return errors.ExternalUnavailable("fhir",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (a *FHIRAdapter) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/metadata", nil)
	if err != nil {
		return errors.Internal(err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return errors.ExternalUnavailable("fhir", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.ExternalUnavailable("fhir",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (a *FHIRAdapter) Close() error { return nil }
