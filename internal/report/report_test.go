package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restoreops/rds-restore/internal/restore"
	"github.com/restoreops/rds-restore/internal/signing"
	"github.com/restoreops/rds-restore/internal/verify"
)

func sampleRun() *restore.Result {
	return &restore.Result{
		SourceInstance:    "mydb-instance",
		SnapshotID:        "mydb-snapshot",
		RestoreSnapshotID: "mydb-snapshot-copy",
		TempInstance:      "mydb-instance-restored",
		Steps: []restore.StepResult{
			{Name: "ensure-snapshot", Status: restore.StepCompleted, Duration: 2 * time.Minute},
			{Name: "restore-temporary", Status: restore.StepCompleted, Duration: 10 * time.Minute},
			{Name: "clear-deletion-protection", Status: restore.StepSkipped},
			{Name: "delete-source", Status: restore.StepCompleted, Duration: 5 * time.Minute},
			{Name: "rename-restored", Status: restore.StepCompleted, Duration: time.Minute},
		},
	}
}

func TestBuilderComputesSummary(t *testing.T) {
	rpt := NewBuilder().
		WithID("run-1").
		WithProject("payments", "Payments").
		WithMachineID("db-restore-01").
		WithRun(sampleRun()).
		Build()

	assert.True(t, rpt.Summary.Success)
	assert.Equal(t, 4, rpt.Summary.CompletedSteps)
	assert.Equal(t, 1, rpt.Summary.SkippedSteps)
	assert.Equal(t, 0, rpt.Summary.FailedSteps)
	assert.Equal(t, "18m0s", rpt.Summary.TotalDuration)
}

func TestBuilderFailedStepFailsSummary(t *testing.T) {
	run := sampleRun()
	run.Steps[4].Status = restore.StepFailed

	rpt := NewBuilder().WithID("run-2").WithRun(run).Build()
	assert.False(t, rpt.Summary.Success)
	assert.Equal(t, 1, rpt.Summary.FailedSteps)
}

func TestBuilderCriticalCheckFailsSummary(t *testing.T) {
	rpt := NewBuilder().
		WithID("run-3").
		WithRun(sampleRun()).
		WithChecks([]verify.CheckResult{
			{Name: "instance_reachable", Level: verify.LevelCritical, Passed: false},
			{Name: "table_count", Level: verify.LevelWarning, Passed: true},
		}).
		Build()

	assert.False(t, rpt.Summary.Success)
	assert.Equal(t, 1, rpt.Summary.CriticalFailures)
}

func TestSignAndVerify(t *testing.T) {
	pubKey, privKey, err := signing.GenerateSigningKeyPair()
	require.NoError(t, err)

	rpt := NewBuilder().WithID("run-4").WithRun(sampleRun()).Build()
	require.NoError(t, Sign(rpt, privKey))
	require.NotEmpty(t, rpt.Signature)

	valid, err := Verify(rpt, pubKey)
	require.NoError(t, err)
	assert.True(t, valid)

	// Tampering invalidates the signature.
	rpt.Run.SourceInstance = "other-instance"
	valid, err = Verify(rpt, pubKey)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestWriteAndListReports(t *testing.T) {
	dir := t.TempDir()

	first := NewBuilder().WithID("run-a").WithRun(sampleRun()).Build()
	first.Timestamp = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	_, err := WriteJSON(first, dir)
	require.NoError(t, err)

	second := NewBuilder().WithID("run-b").WithRun(sampleRun()).Build()
	second.Timestamp = time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	path, err := WriteJSON(second, dir)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "run-b", loaded.ID)
	assert.Equal(t, "mydb-instance", loaded.Run.SourceInstance)

	list, err := List(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, "run-b", list[0].ID)
	assert.Equal(t, "run-a", list[1].ID)
	assert.Equal(t, "mydb-instance", list[0].SourceInstance)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	list, err := List("/nonexistent/reports")
	require.NoError(t, err)
	assert.Empty(t, list)
}
