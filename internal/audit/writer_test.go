package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestU_NopWriter_Basics tests the disabled-audit writer.
func TestU_NopWriter_Basics(t *testing.T) {
	w := NopWriter{}
	if err := w.Write(NewStartedEvent("localhost:8080")); err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if w.LastHash() != GenesisHash {
		t.Errorf("LastHash = %q, want genesis", w.LastHash())
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

// TestU_FileWriter_ChainAndVerify tests writing a chained log and
// verifying it.
func TestU_FileWriter_ChainAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}

	events := []*Event{
		NewStartedEvent("localhost:8080"),
		NewResponseEvent("successful", []string{"0a1b"}),
		NewResponseEvent("unauthorized", nil),
		NewStoppedEvent("localhost:8080"),
	}
	for i, e := range events {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != len(events) {
		t.Errorf("Expected %d lines, got %d", len(events), got)
	}
	if err := VerifyChain(data); err != nil {
		t.Errorf("VerifyChain failed: %v", err)
	}
}

// TestU_FileWriter_FirstEventGenesis tests that the chain starts at
// the genesis hash.
func TestU_FileWriter_FirstEventGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	defer w.Close()

	event := NewStartedEvent("localhost:8080")
	if err := w.Write(event); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if event.HashPrev != GenesisHash {
		t.Errorf("HashPrev = %q, want genesis", event.HashPrev)
	}
	if !strings.HasPrefix(event.Hash, HashPrefix) {
		t.Errorf("Hash = %q, missing prefix", event.Hash)
	}
	if w.LastHash() != event.Hash {
		t.Errorf("LastHash = %q, want %q", w.LastHash(), event.Hash)
	}
}

// TestU_FileWriter_ResumesChain tests chain continuity across reopen.
func TestU_FileWriter_ResumesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w1, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	first := NewStartedEvent("localhost:8080")
	if err := w1.Write(first); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w2, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter (reopen) failed: %v", err)
	}
	defer w2.Close()

	if w2.LastHash() != first.Hash {
		t.Errorf("Reopened LastHash = %q, want %q", w2.LastHash(), first.Hash)
	}

	second := NewResponseEvent("successful", []string{"ff"})
	if err := w2.Write(second); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if second.HashPrev != first.Hash {
		t.Errorf("HashPrev = %q, want %q", second.HashPrev, first.Hash)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := VerifyChain(data); err != nil {
		t.Errorf("VerifyChain failed: %v", err)
	}
}

// TestU_VerifyChain_TamperedInvalid tests detection of a modified line.
func TestU_VerifyChain_TamperedInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w.Write(NewResponseEvent("successful", []string{"01"})); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	tampered := strings.Replace(string(data), "successful", "unauthorized", 1)

	if err := VerifyChain([]byte(tampered)); err == nil {
		t.Error("Expected VerifyChain to reject a tampered log")
	}
}

// TestU_ResponseEvent_ResultMapping tests success/failure mapping from
// the response status.
func TestU_ResponseEvent_ResultMapping(t *testing.T) {
	if e := NewResponseEvent("successful", nil); e.Result != ResultSuccess {
		t.Errorf("Result = %q, want success", e.Result)
	}
	if e := NewResponseEvent("malformedRequest", nil); e.Result != ResultFailure {
		t.Errorf("Result = %q, want failure", e.Result)
	}
}
