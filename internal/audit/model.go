package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/echoledger/platform/internal/shared/types"
)

// canonicalJSON produces deterministic JSON output with sorted map keys.
// This is critical for hash verification - Go maps have random iteration order,
// and PostgreSQL JSONB may reorder keys, so we must sort them for consistent hashing.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// ActorType defines the type of actor
type ActorType string

const (
	ActorTypePatient   ActorType = "patient"
	ActorTypeClinician ActorType = "clinician"
	ActorTypeHospital  ActorType = "hospital"
	ActorTypeSystem    ActorType = "system"
)

// Entry represents an immutable audit log entry. Patients appear only
// as hashes; the raw identifier is never written to the trail.
type Entry struct {
	ID        types.ID  `json:"id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash,omitempty"`

	// Actor
	ActorType   ActorType `json:"actor_type"`
	PatientHash string    `json:"patient_hash,omitempty"`
	FacilityID  string    `json:"facility_id,omitempty"`

	// Action
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *types.ID `json:"resource_id,omitempty"`

	// Changes
	Changes map[string]any `json:"changes,omitempty"`

	// Context
	CorrelationID string `json:"correlation_id,omitempty"`
}

// NewEntry creates a new audit entry
func NewEntry(
	actorType ActorType,
	patientHash, facilityID string,
	action, resourceType string,
	resourceID *types.ID,
	changes map[string]any,
	prevHash string,
) *Entry {
	entry := &Entry{
		ID:           types.NewID(),
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond), // Truncate to microseconds for PostgreSQL compatibility
		PrevHash:     prevHash,
		ActorType:    actorType,
		PatientHash:  patientHash,
		FacilityID:   facilityID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
	}

	entry.Hash = entry.calculateHash()

	return entry
}

// calculateHash calculates the SHA-256 hash of the entry using canonical JSON
// for deterministic output regardless of map key ordering.
func (e *Entry) calculateHash() string {
	// Always use UTC for the timestamp so the hash does not depend on the
	// timezone of the verifying host
	data := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor_type":    e.ActorType,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}

	if e.PatientHash != "" {
		data["patient_hash"] = e.PatientHash
	}
	if e.FacilityID != "" {
		data["facility_id"] = e.FacilityID
	}
	if e.ResourceID != nil {
		data["resource_id"] = e.ResourceID
	}
	if len(e.Changes) > 0 {
		data["changes"] = e.Changes
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies the entry's hash
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// ComputeHash computes and returns the correct hash for this entry
func (e *Entry) ComputeHash() string {
	return e.calculateHash()
}

// ListFilter defines filters for listing audit entries
type ListFilter struct {
	ActorType    *ActorType `json:"actor_type,omitempty"`
	PatientHash  string     `json:"patient_hash,omitempty"`
	FacilityID   string     `json:"facility_id,omitempty"`
	Action       string     `json:"action,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   *types.ID  `json:"resource_id,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}

// Common audit actions
const (
	ActionDirectiveClassified = "directive.classified"
	ActionDirectiveRegistered = "directive.registered"
	ActionDirectiveRevoked    = "directive.revoked"
	ActionEmergencyChecked    = "emergency.checked"
	ActionExecutionCompleted  = "execution.completed"
)
