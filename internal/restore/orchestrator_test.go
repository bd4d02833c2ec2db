package restore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restoreops/rds-restore/internal/rdsapi"
)

// fakeAPI is an in-memory RDS control plane. State transitions settle
// immediately unless settleAfter delays them, so wait loops see a couple of
// in-progress polls before reaching available.
type fakeAPI struct {
	instances map[string]*rdsapi.Instance
	snapshots map[string]*rdsapi.Snapshot

	// calls records every mutating operation in order.
	calls []string

	// copyStatus is the status newly copied snapshots start in.
	copyStatus string
	// restoreStatus is the status newly restored instances settle into.
	restoreStatus string
	// settleAfter delays availability: an identifier listed here reports
	// the pending status for that many describes before turning available.
	settleAfter map[string]int
	pendingSeen map[string]int
	// transientErrs makes the next N describes of an identifier fail with
	// a retryable error.
	transientErrs map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		instances:     make(map[string]*rdsapi.Instance),
		snapshots:     make(map[string]*rdsapi.Snapshot),
		copyStatus:    "available",
		restoreStatus: "available",
		settleAfter:   make(map[string]int),
		pendingSeen:   make(map[string]int),
		transientErrs: make(map[string]int),
	}
}

func (f *fakeAPI) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAPI) settled(id, pendingStatus, status string) string {
	if f.pendingSeen[id] < f.settleAfter[id] {
		f.pendingSeen[id]++
		return pendingStatus
	}
	return status
}

func (f *fakeAPI) DescribeInstance(ctx context.Context, id string) (*rdsapi.Instance, error) {
	inst, ok := f.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, rdsapi.ErrInstanceNotFound)
	}
	// Throttling kicks in while waits are polling an existing instance.
	if n := f.transientErrs[id]; n > 0 {
		f.transientErrs[id] = n - 1
		return nil, fmt.Errorf("throttled: rate exceeded")
	}
	out := *inst
	out.Status = f.settled(id, "modifying", inst.Status)
	return &out, nil
}

func (f *fakeAPI) DescribeSnapshot(ctx context.Context, id string) (*rdsapi.Snapshot, error) {
	snap, ok := f.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", id, rdsapi.ErrSnapshotNotFound)
	}
	out := *snap
	out.Status = f.settled(id, "creating", snap.Status)
	return &out, nil
}

func (f *fakeAPI) CopySnapshot(ctx context.Context, sourceID, targetID, kmsKeyARN string) error {
	f.record("CopySnapshot(%s,%s)", sourceID, targetID)
	f.snapshots[targetID] = &rdsapi.Snapshot{
		Identifier: targetID,
		Status:     f.copyStatus,
		Encrypted:  kmsKeyARN != "",
		KMSKeyID:   kmsKeyARN,
	}
	return nil
}

func (f *fakeAPI) RestoreInstanceFromSnapshot(ctx context.Context, spec rdsapi.RestoreSpec) error {
	f.record("RestoreInstanceFromSnapshot(%s,%s)", spec.InstanceIdentifier, spec.SnapshotIdentifier)
	f.instances[spec.InstanceIdentifier] = &rdsapi.Instance{
		Identifier:          spec.InstanceIdentifier,
		Status:              f.restoreStatus,
		InstanceClass:       spec.InstanceClass,
		Endpoint:            spec.InstanceIdentifier + ".abc.rds.example.com",
		Port:                5432,
		SubnetGroupName:     spec.SubnetGroupName,
		OptionGroupName:     spec.OptionGroupName,
		VPCSecurityGroupIDs: spec.VPCSecurityGroupIDs,
		PubliclyAccessible:  spec.PubliclyAccessible,
		Tags:                spec.Tags,
	}
	return nil
}

func (f *fakeAPI) SetDeletionProtection(ctx context.Context, id string, enabled bool) error {
	f.record("SetDeletionProtection(%s,%t)", id, enabled)
	inst, ok := f.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, rdsapi.ErrInstanceNotFound)
	}
	inst.DeletionProtection = enabled
	return nil
}

func (f *fakeAPI) DeleteInstance(ctx context.Context, id string) error {
	f.record("DeleteInstance(%s)", id)
	inst, ok := f.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, rdsapi.ErrInstanceNotFound)
	}
	if inst.DeletionProtection {
		return fmt.Errorf("instance %s has deletion protection enabled", id)
	}
	delete(f.instances, id)
	return nil
}

func (f *fakeAPI) RenameInstance(ctx context.Context, oldID, newID string) error {
	f.record("RenameInstance(%s,%s)", oldID, newID)
	inst, ok := f.instances[oldID]
	if !ok {
		return fmt.Errorf("instance %s: %w", oldID, rdsapi.ErrInstanceNotFound)
	}
	if _, taken := f.instances[newID]; taken {
		return fmt.Errorf("instance identifier %s already in use", newID)
	}
	delete(f.instances, oldID)
	inst.Identifier = newID
	// RDS re-derives the endpoint address from the new identifier.
	inst.Endpoint = newID + ".abc.rds.example.com"
	f.instances[newID] = inst
	return nil
}

func (f *fakeAPI) callIndex(t *testing.T, call string) int {
	t.Helper()
	for i, c := range f.calls {
		if c == call {
			return i
		}
	}
	t.Fatalf("call %q not found in %v", call, f.calls)
	return -1
}

func discardLogf(format string, args ...any) {}

func newTestOrchestrator(api rdsapi.API, kmsKey string) *Orchestrator {
	return New(api, Config{
		SourceInstance: "mydb-instance",
		SnapshotID:     "mydb-snapshot",
		KMSKeyARN:      kmsKey,
		PollInterval:   time.Millisecond,
		StepTimeout:    2 * time.Second,
		Logf:           discardLogf,
	})
}

func TestRunFullSequence(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{
		Identifier:          "mydb-instance",
		Status:              "available",
		InstanceClass:       "db.t3.medium",
		SubnetGroupName:     "main-subnets",
		OptionGroupName:     "default-postgres",
		VPCSecurityGroupIDs: []string{"sg-123"},
		DeletionProtection:  true,
	}
	// A couple of in-progress polls on the restored instance.
	api.settleAfter["mydb-instance-restored"] = 2

	o := newTestOrchestrator(api, "arn:aws:kms:eu-central-1:123456789012:key/abc")
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	// Exactly one instance remains, under the original name.
	require.Len(t, api.instances, 1)
	final, ok := api.instances["mydb-instance"]
	require.True(t, ok, "final instance must hold the original name")
	assert.Equal(t, "mydb-snapshot-copy", final.Tags[TagRestoredFrom])

	// Configuration was propagated from the source instance.
	assert.Equal(t, "db.t3.medium", final.InstanceClass)
	assert.Equal(t, "main-subnets", final.SubnetGroupName)
	assert.Equal(t, "default-postgres", final.OptionGroupName)
	assert.Equal(t, []string{"sg-123"}, final.VPCSecurityGroupIDs)

	// Protection cleared before delete, delete confirmed before rename.
	clearIdx := api.callIndex(t, "SetDeletionProtection(mydb-instance,false)")
	deleteIdx := api.callIndex(t, "DeleteInstance(mydb-instance)")
	renameIdx := api.callIndex(t, "RenameInstance(mydb-instance-restored,mydb-instance)")
	assert.Less(t, clearIdx, deleteIdx)
	assert.Less(t, deleteIdx, renameIdx)

	require.Len(t, result.Steps, 5)
	for _, s := range result.Steps {
		assert.NotEqual(t, StepFailed, s.Status, "step %s", s.Name)
	}
	assert.False(t, result.AlreadyComplete)
	assert.Equal(t, "mydb-instance.abc.rds.example.com", result.Endpoint)
}

func TestRunWithoutKMSKeyUsesSnapshotDirectly(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{Identifier: "mydb-instance", Status: "available"}

	o := newTestOrchestrator(api, "")
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	for _, c := range api.calls {
		assert.NotContains(t, c, "CopySnapshot")
	}
	assert.Equal(t, "mydb-snapshot", result.RestoreSnapshotID)
	api.callIndex(t, "RestoreInstanceFromSnapshot(mydb-instance-restored,mydb-snapshot)")
}

func TestTemporaryInstanceAlreadyExists(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{Identifier: "mydb-instance", Status: "available"}
	// Left over from a prior partial run, still settling.
	api.instances["mydb-instance-restored"] = &rdsapi.Instance{
		Identifier: "mydb-instance-restored",
		Status:     "available",
		Endpoint:   "mydb-instance-restored.abc.rds.example.com",
		Tags:       map[string]string{TagRestoredFrom: "mydb-snapshot"},
	}
	api.settleAfter["mydb-instance-restored"] = 3

	o := newTestOrchestrator(api, "")
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	for _, c := range api.calls {
		assert.NotContains(t, c, "RestoreInstanceFromSnapshot")
	}
	assert.Equal(t, StepSkipped, result.Steps[1].Status)
	require.Len(t, api.instances, 1)
	assert.Contains(t, api.instances, "mydb-instance")
}

func TestSnapshotCopyFailureAbortsBeforeRestore(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{Identifier: "mydb-instance", Status: "available"}
	api.copyStatus = "failed"

	o := newTestOrchestrator(api, "arn:aws:kms:eu-central-1:123456789012:key/abc")
	result, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal status")

	// The restore was never attempted and the source is untouched.
	for _, c := range api.calls {
		assert.NotContains(t, c, "RestoreInstanceFromSnapshot")
		assert.NotContains(t, c, "DeleteInstance")
	}
	assert.Contains(t, api.instances, "mydb-instance")
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepFailed, result.Steps[0].Status)
}

func TestRestoreTerminalStatusAbortsRun(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{
		Identifier:         "mydb-instance",
		Status:             "available",
		DeletionProtection: true,
	}
	api.restoreStatus = "restore-error"

	o := newTestOrchestrator(api, "")
	result, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `terminal status "restore-error"`)

	// The run stopped at the restore wait: the source keeps its name and
	// its protection, nothing was deleted or renamed.
	for _, c := range api.calls {
		assert.NotContains(t, c, "SetDeletionProtection")
		assert.NotContains(t, c, "DeleteInstance")
		assert.NotContains(t, c, "RenameInstance")
	}
	source, ok := api.instances["mydb-instance"]
	require.True(t, ok)
	assert.True(t, source.DeletionProtection)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepFailed, result.Steps[1].Status)
}

func TestRerunAfterCompletionIsNoOp(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.snapshots["mydb-snapshot-copy"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot-copy", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{
		Identifier: "mydb-instance",
		Status:     "available",
		Tags:       map[string]string{TagRestoredFrom: "mydb-snapshot-copy"},
	}

	o := newTestOrchestrator(api, "arn:aws:kms:eu-central-1:123456789012:key/abc")
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.AlreadyComplete)
	assert.Empty(t, api.calls, "no mutating call on an already-completed state")
	require.Len(t, result.Steps, 5)
	for _, s := range result.Steps {
		assert.Equal(t, StepSkipped, s.Status)
	}
}

func TestSourceMissingWithoutMarkerIsFatal(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}

	o := newTestOrchestrator(api, "")
	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rdsapi.ErrInstanceNotFound)
	assert.Contains(t, err.Error(), "no completed restore detected")
}

func TestTransientDescribeErrorsAreRetried(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{Identifier: "mydb-instance", Status: "available"}

	o := newTestOrchestrator(api, "")
	// Throttle the first describes of the temporary instance.
	api.transientErrs["mydb-instance-restored"] = 3

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, api.instances, "mydb-instance")
}

func TestDeleteNeverCalledWhileProtected(t *testing.T) {
	api := newFakeAPI()
	api.snapshots["mydb-snapshot"] = &rdsapi.Snapshot{Identifier: "mydb-snapshot", Status: "available"}
	api.instances["mydb-instance"] = &rdsapi.Instance{
		Identifier:         "mydb-instance",
		Status:             "available",
		DeletionProtection: true,
	}

	o := newTestOrchestrator(api, "")
	_, err := o.Run(context.Background())
	// The fake rejects deletes on protected instances, so the run only
	// succeeds if protection was cleared first.
	require.NoError(t, err)
	assert.Less(t,
		api.callIndex(t, "SetDeletionProtection(mydb-instance,false)"),
		api.callIndex(t, "DeleteInstance(mydb-instance)"))
}
