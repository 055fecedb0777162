package audit

import (
	"context"
	"testing"
	"time"

	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/types"
)

func TestEntryHashIsDeterministic(t *testing.T) {
	resourceID := types.NewID()
	entry := NewEntry(
		ActorTypePatient, "hash-abc", "",
		ActionDirectiveRegistered, "directive", &resourceID,
		map[string]any{"directive_type": "DNR", "confidence": 0.95},
		"",
	)

	if !entry.VerifyHash() {
		t.Error("Expected freshly created entry to verify")
	}

	first := entry.ComputeHash()
	for i := 0; i < 10; i++ {
		if got := entry.ComputeHash(); got != first {
			t.Fatalf("Expected stable hash '%s', got '%s'", first, got)
		}
	}
}

func TestEntryHashDetectsMutation(t *testing.T) {
	entry := NewEntry(
		ActorTypeSystem, "", "",
		ActionEmergencyChecked, "emergency", nil,
		map[string]any{"situation": "cardiac_arrest"},
		"",
	)

	entry.Changes["situation"] = "routine_checkup"

	if entry.VerifyHash() {
		t.Error("Expected hash verification to fail after mutation")
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a, err := canonicalJSON(map[string]any{"b": 1, "a": map[string]any{"z": true, "y": false}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := `{"a":{"y":false,"z":true},"b":1}`
	if string(a) != expected {
		t.Errorf("Expected '%s', got '%s'", expected, string(a))
	}
}

func TestAppendLinksChain(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var hashes []string
	for i := 0; i < 5; i++ {
		entry := NewEntry(
			ActorTypePatient, "patient-hash", "",
			ActionDirectiveRegistered, "directive", nil, nil, "",
		)
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if i == 0 && entry.PrevHash != "" {
			t.Error("Expected first entry to have empty prev_hash")
		}
		if i > 0 && entry.PrevHash != hashes[i-1] {
			t.Errorf("Expected prev_hash '%s', got '%s'", hashes[i-1], entry.PrevHash)
		}
		if entry.Sequence != int64(i+1) {
			t.Errorf("Expected sequence %d, got %d", i+1, entry.Sequence)
		}
		hashes = append(hashes, entry.Hash)
	}

	if repo.GetLastHash() != hashes[4] {
		t.Errorf("Expected last hash '%s', got '%s'", hashes[4], repo.GetLastHash())
	}
}

func TestVerifyChainValid(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		entry := NewEntry(
			ActorTypeSystem, "", "",
			ActionExecutionCompleted, "execution", nil,
			map[string]any{"index": i}, "",
		)
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	result, err := repo.VerifyChain(ctx, 100, false)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.Valid {
		t.Errorf("Expected valid chain, got violations: %v", result.Violations)
	}
	if result.Checked != 10 {
		t.Errorf("Expected 10 checked entries, got %d", result.Checked)
	}
	if result.ContentValid != 10 {
		t.Errorf("Expected 10 content-valid entries, got %d", result.ContentValid)
	}
}

func TestVerifyChainDetectsContentTampering(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := NewEntry(
			ActorTypePatient, "patient-hash", "",
			ActionDirectiveRegistered, "directive", nil,
			map[string]any{"index": i}, "",
		)
		repo.Append(ctx, entry)
	}

	repo.tamper(2, func(e *Entry) {
		e.Changes["index"] = 99
	})

	result, err := repo.VerifyChain(ctx, 100, true)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Valid {
		t.Error("Expected tampered chain to be invalid")
	}
	if result.ContentInvalid != 1 {
		t.Errorf("Expected 1 content-invalid entry, got %d", result.ContentInvalid)
	}
}

func TestVerifyChainDetectsBrokenLinkage(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := NewEntry(
			ActorTypeHospital, "", "MAYO-01",
			ActionEmergencyChecked, "emergency", nil,
			map[string]any{"index": i}, "",
		)
		repo.Append(ctx, entry)
	}

	// Rewrite an entry consistently with itself but not with its neighbor,
	// simulating a replaced record
	repo.tamper(2, func(e *Entry) {
		e.PrevHash = "0000000000000000000000000000000000000000000000000000000000000000"
		e.Hash = e.ComputeHash()
	})

	result, err := repo.VerifyChain(ctx, 100, false)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Valid {
		t.Error("Expected broken chain to be invalid")
	}
	if result.LinkageInvalid == 0 {
		t.Error("Expected at least one linkage violation")
	}
}

func TestListFiltersByPatientHash(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		repo.Append(ctx, NewEntry(
			ActorTypePatient, "patient-a", "",
			ActionDirectiveRegistered, "directive", nil, nil, "",
		))
	}
	repo.Append(ctx, NewEntry(
		ActorTypePatient, "patient-b", "",
		ActionDirectiveRevoked, "directive", nil, nil, "",
	))

	entries, total, err := repo.List(ctx, ListFilter{PatientHash: "patient-a"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if total != 3 {
		t.Errorf("Expected 3 entries, got %d", total)
	}
	for _, e := range entries {
		if e.PatientHash != "patient-a" {
			t.Errorf("Expected patient 'patient-a', got '%s'", e.PatientHash)
		}
	}
}

func TestListActionPrefixFilter(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	repo.Append(ctx, NewEntry(ActorTypeSystem, "", "", ActionDirectiveRegistered, "directive", nil, nil, ""))
	repo.Append(ctx, NewEntry(ActorTypeSystem, "", "", ActionDirectiveRevoked, "directive", nil, nil, ""))
	repo.Append(ctx, NewEntry(ActorTypeSystem, "", "", ActionEmergencyChecked, "emergency", nil, nil, ""))

	_, total, err := repo.List(ctx, ListFilter{Action: "directive."})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if total != 2 {
		t.Errorf("Expected 2 directive entries, got %d", total)
	}
}

func TestGetByResource(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	resourceID := types.NewID()

	repo.Append(ctx, NewEntry(
		ActorTypePatient, "patient-a", "",
		ActionDirectiveRegistered, "directive", &resourceID, nil, "",
	))
	repo.Append(ctx, NewEntry(
		ActorTypePatient, "patient-a", "",
		ActionDirectiveRevoked, "directive", &resourceID, nil, "",
	))
	other := types.NewID()
	repo.Append(ctx, NewEntry(
		ActorTypePatient, "patient-a", "",
		ActionDirectiveRegistered, "directive", &other, nil, "",
	))

	entries, err := repo.GetByResource(ctx, "directive", resourceID, 10)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
}

func TestSubscriberConvertsEvents(t *testing.T) {
	repo := NewMemoryRepository()
	sub := NewSubscriber(repo, events.NoopBus{})

	directiveID := types.NewID().String()
	event := events.NewEvent(events.TypeDirectiveRegistered, "directive", map[string]any{
		"directive_id":   directiveID,
		"directive_type": "DNR",
	}).WithActor("patient", "patient-hash-xyz", "")

	if err := sub.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	count, _ := repo.Count(context.Background())
	if count != 1 {
		t.Fatalf("Expected 1 entry, got %d", count)
	}

	entries, _, _ := repo.List(context.Background(), ListFilter{})
	entry := entries[0]
	if entry.Action != "directive.registered" {
		t.Errorf("Expected action 'directive.registered', got '%s'", entry.Action)
	}
	if entry.ResourceType != "directive" {
		t.Errorf("Expected resource type 'directive', got '%s'", entry.ResourceType)
	}
	if entry.ActorType != ActorTypePatient {
		t.Errorf("Expected actor type 'patient', got '%s'", entry.ActorType)
	}
	if entry.PatientHash != "patient-hash-xyz" {
		t.Errorf("Expected patient hash 'patient-hash-xyz', got '%s'", entry.PatientHash)
	}
	if entry.ResourceID == nil || entry.ResourceID.String() != directiveID {
		t.Error("Expected resource ID extracted from event data")
	}
	if !entry.VerifyHash() {
		t.Error("Expected appended entry to verify")
	}
}

func TestSubscriberSkipsUnstructuredEvents(t *testing.T) {
	repo := NewMemoryRepository()
	sub := NewSubscriber(repo, events.NoopBus{})

	event := events.Event{
		ID:        types.NewID().String(),
		Type:      "heartbeat",
		Timestamp: time.Now().UTC(),
		ActorType: "system",
	}

	if err := sub.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	count, _ := repo.Count(context.Background())
	if count != 0 {
		t.Errorf("Expected 0 entries for unqualified event type, got %d", count)
	}
}
