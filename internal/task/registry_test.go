package task

import (
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry()

	created := r.Create([]string{"progressive", "geico"})
	if created.ID == "" {
		t.Fatal("expected a task id")
	}
	if created.Status != StatusInitializing {
		t.Errorf("expected initializing status, got %q", created.Status)
	}

	got, err := r.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Carriers) != 2 || got.CarrierStatus["geico"].Status != StatusInitializing {
		t.Errorf("unexpected task: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestUpdateUserDataMerges(t *testing.T) {
	r := NewRegistry()
	created := r.Create([]string{"progressive"})

	if _, err := r.UpdateUserData(created.ID, map[string]any{"zipCode": "94103", "firstName": "Ada"}); err != nil {
		t.Fatal(err)
	}
	got, err := r.UpdateUserData(created.ID, map[string]any{"firstName": "Grace"})
	if err != nil {
		t.Fatal(err)
	}

	if got.UserData["zipCode"] != "94103" {
		t.Error("untouched key should survive the second update")
	}
	if got.UserData["firstName"] != "Grace" {
		t.Error("later value should overwrite the earlier one")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := NewRegistry()
	created := r.Create([]string{"progressive"})

	created.UserData["zipCode"] = "00000"
	got, err := r.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.UserData["zipCode"]; ok {
		t.Error("mutating a returned task should not affect the registry")
	}
}

func TestRemoveFiresCleanup(t *testing.T) {
	r := NewRegistry()
	var cleaned []string
	r.OnCleanup(func(id string) { cleaned = append(cleaned, id) })

	created := r.Create([]string{"progressive"})
	r.Remove(created.ID)
	r.Remove(created.ID) // second remove is a no-op

	if len(cleaned) != 1 || cleaned[0] != created.ID {
		t.Errorf("expected one cleanup for %s, got %v", created.ID, cleaned)
	}
	if _, err := r.Get(created.ID); err == nil {
		t.Error("removed task should be gone")
	}
}

func TestReapInactive(t *testing.T) {
	r := NewRegistry()
	var cleaned []string
	r.OnCleanup(func(id string) { cleaned = append(cleaned, id) })

	stale := r.Create([]string{"progressive"})
	fresh := r.Create([]string{"geico"})

	// Age the first task past the ttl by hand.
	r.mu.Lock()
	r.tasks[stale.ID].LastActive = time.Now().Add(-2 * time.Hour)
	r.mu.Unlock()

	expired := r.ReapInactive(time.Hour)
	if len(expired) != 1 || expired[0] != stale.ID {
		t.Fatalf("expected only the stale task reaped, got %v", expired)
	}
	if len(cleaned) != 1 {
		t.Errorf("expected cleanup hook for reaped task, got %v", cleaned)
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Error("fresh task should survive the sweep")
	}
}

func TestSetCarrierState(t *testing.T) {
	r := NewRegistry()
	created := r.Create([]string{"progressive"})

	err := r.SetCarrierState(created.ID, "progressive", CarrierState{
		Status:           StatusWaitingForInput,
		CurrentStep:      2,
		CurrentStepLabel: "personal_info",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := r.Get(created.ID)
	cs := got.CarrierStatus["progressive"]
	if cs.Status != StatusWaitingForInput || cs.CurrentStep != 2 {
		t.Errorf("unexpected carrier state: %+v", cs)
	}
}
