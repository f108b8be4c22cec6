package storage

import (
	"path/filepath"
	"testing"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

func testClient(t *testing.T) *DBClient {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite3")
	client, err := NewDBClientWithPath(dbPath)
	if err != nil {
		t.Fatalf("Failed to create db client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testResult() *model.ConsensusResult {
	return &model.ConsensusResult{
		OffsetSeconds:   2.003,
		OffsetSamples:   96144,
		Confidence:      0.91,
		MethodAgreement: 0.97,
		Status:          model.StatusNeedsCorrection,
		Drift:           model.DriftConstant,
		Methods: []model.MethodResult{
			{Method: model.MethodRawWaveform, OffsetSeconds: 2.003, Confidence: 0.91, PeakProminence: 8.2},
			{Method: model.MethodRMSEnvelope, OffsetSeconds: 2.0, Confidence: 0.25, Advisory: true},
		},
		Failures: map[model.Method]error{
			model.MethodOnset: &model.NoReliablePeakError{Method: model.MethodOnset, Prominence: 1.2, Threshold: 1.5},
		},
		Decision: &model.VerificationDecision{Outcome: model.OutcomeAccepted},
	}
}

func TestSaveAndGetReport(t *testing.T) {
	client := testClient(t)

	if err := client.SaveReport("job-1", "/media/master.mkv", "/media/dub.mkv", testResult()); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	job, records, err := client.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.MasterPath != "/media/master.mkv" || job.DubPath != "/media/dub.mkv" {
		t.Errorf("paths = %q, %q", job.MasterPath, job.DubPath)
	}
	if job.OffsetSeconds != 2.003 {
		t.Errorf("offset = %v, want 2.003", job.OffsetSeconds)
	}
	if job.OffsetSamples != 96144 {
		t.Errorf("offset samples = %d, want 96144", job.OffsetSamples)
	}
	if job.Status != "NEEDS_CORRECTION" {
		t.Errorf("status = %q, want NEEDS_CORRECTION", job.Status)
	}
	if job.Drift != "CONSTANT_OFFSET" {
		t.Errorf("drift = %q, want CONSTANT_OFFSET", job.Drift)
	}
	if job.VerificationOutcome != "ACCEPTED" {
		t.Errorf("verification = %q, want ACCEPTED", job.VerificationOutcome)
	}
	if job.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	// Two method rows plus one failure row.
	if len(records) != 3 {
		t.Fatalf("got %d method records, want 3", len(records))
	}
	var failRows, advisoryRows int
	for _, rec := range records {
		if rec.FailReason != "" {
			failRows++
		}
		if rec.Advisory {
			advisoryRows++
		}
	}
	if failRows != 1 {
		t.Errorf("got %d failure rows, want 1", failRows)
	}
	if advisoryRows != 1 {
		t.Errorf("got %d advisory rows, want 1", advisoryRows)
	}
}

func TestGetJobNotFound(t *testing.T) {
	client := testClient(t)
	if _, _, err := client.GetJob("missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestListJobs(t *testing.T) {
	client := testClient(t)

	for _, id := range []string{"job-a", "job-b", "job-c"} {
		if err := client.SaveReport(id, "m", "d", testResult()); err != nil {
			t.Fatalf("SaveReport(%s) failed: %v", id, err)
		}
	}

	jobs, err := client.ListJobs(2)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("got %d jobs, want limit 2", len(jobs))
	}

	all, err := client.ListJobs(0)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d jobs, want 3", len(all))
	}
}

func TestDeleteJob(t *testing.T) {
	client := testClient(t)

	if err := client.SaveReport("job-1", "m", "d", testResult()); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if err := client.DeleteJob("job-1"); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if _, _, err := client.GetJob("job-1"); err == nil {
		t.Error("job still present after delete")
	}

	var records []MethodRecord
	if err := client.DB.Where("job_id = ?", "job-1").Find(&records).Error; err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("%d method records left behind", len(records))
	}
}

func TestDuplicateJobIDRejected(t *testing.T) {
	client := testClient(t)

	if err := client.SaveReport("job-1", "m", "d", testResult()); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if err := client.SaveReport("job-1", "m2", "d2", testResult()); err == nil {
		t.Error("expected primary key violation for duplicate job id")
	}
}

func TestNilClient(t *testing.T) {
	var client *DBClient
	if err := client.SaveReport("x", "m", "d", testResult()); err == nil {
		t.Error("expected error from nil client")
	}
	if _, err := client.ListJobs(1); err == nil {
		t.Error("expected error from nil client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("nil Close should be a no-op, got %v", err)
	}
}
