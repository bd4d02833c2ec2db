// Package restore drives the restore-and-swap sequence: make sure the
// snapshot is usable, restore it into a temporary instance, retire the
// original, and move the original's name onto the restored instance. Each
// step observes current control-plane state first, so a re-run after a
// partial failure converges instead of erroring.
package restore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/restoreops/rds-restore/internal/poll"
	"github.com/restoreops/rds-restore/internal/rdsapi"
)

// TagRestoredFrom marks an instance created by this tool with the snapshot
// identifier it was restored from. A later run uses it to recognize its own
// completed work once the original instance is gone.
const TagRestoredFrom = "rds-restore:restored-from"

// TempSuffix is appended to the source identifier to name the instance the
// snapshot is restored into before the swap.
const TempSuffix = "-restored"

// StepStatus classifies the outcome of a step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// StepResult records the outcome of one step of the sequence.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration_ns"`
}

// Result summarizes a completed or aborted run.
type Result struct {
	SourceInstance    string       `json:"source_instance"`
	SnapshotID        string       `json:"snapshot_id"`
	RestoreSnapshotID string       `json:"restore_snapshot_id"`
	TempInstance      string       `json:"temp_instance"`
	AlreadyComplete   bool         `json:"already_complete"`
	Endpoint          string       `json:"endpoint,omitempty"`
	Steps             []StepResult `json:"steps"`

	// FinalInstance is the instance holding the source name after a
	// successful run.
	FinalInstance *rdsapi.Instance `json:"-"`
}

// Config carries the identifiers and wait tuning for one run.
type Config struct {
	// SourceInstance is the identifier of the instance being replaced.
	SourceInstance string
	// SnapshotID is the snapshot identifier or ARN to restore from.
	SnapshotID string
	// KMSKeyARN, when set, forces the snapshot to be copied under this key
	// before the restore.
	KMSKeyARN string

	PollInterval time.Duration
	StepTimeout  time.Duration

	// Logf receives progress lines. Defaults to stdout.
	Logf func(format string, args ...any)
}

// Orchestrator executes the fixed five-step sequence against an injected
// control-plane client.
type Orchestrator struct {
	api      rdsapi.API
	source   string
	snapshot string
	kmsKey   string
	waiter   poll.Waiter
	logf     func(format string, args ...any)
}

// New builds an Orchestrator. Zero wait durations fall back to the poll
// package defaults.
func New(api rdsapi.API, cfg Config) *Orchestrator {
	logf := cfg.Logf
	if logf == nil {
		logf = func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		}
	}
	return &Orchestrator{
		api:      api,
		source:   cfg.SourceInstance,
		snapshot: cfg.SnapshotID,
		kmsKey:   cfg.KMSKeyARN,
		waiter:   poll.NewWaiter(cfg.PollInterval, cfg.StepTimeout),
		logf:     logf,
	}
}

type step struct {
	name string
	fn   func(ctx context.Context, res *Result) (StepStatus, string, error)
}

func (o *Orchestrator) steps() []step {
	return []step{
		{"ensure-snapshot", o.ensureSnapshot},
		{"restore-temporary", o.restoreTemporary},
		{"clear-deletion-protection", o.clearDeletionProtection},
		{"delete-source", o.deleteSource},
		{"rename-restored", o.renameRestored},
	}
}

// Run executes the sequence. It returns the partial Result alongside the
// error when a step fails; no rollback of earlier steps is attempted.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		SourceInstance:    o.source,
		SnapshotID:        o.snapshot,
		RestoreSnapshotID: o.restoreSnapshotID(),
		TempInstance:      o.source + TempSuffix,
	}

	done, err := o.alreadyComplete(ctx, res)
	if err != nil {
		return res, err
	}
	if done {
		res.AlreadyComplete = true
		o.logf("Instance %s already restored from snapshot %s, nothing to do", o.source, res.RestoreSnapshotID)
		for _, s := range o.steps() {
			res.Steps = append(res.Steps, StepResult{
				Name:    s.name,
				Status:  StepSkipped,
				Message: "restore already completed by an earlier run",
			})
		}
		return res, nil
	}

	for _, s := range o.steps() {
		start := time.Now()
		status, msg, err := s.fn(ctx, res)
		sr := StepResult{Name: s.name, Status: status, Message: msg, Duration: time.Since(start)}
		if err != nil {
			sr.Status = StepFailed
			sr.Message = err.Error()
			res.Steps = append(res.Steps, sr)
			return res, fmt.Errorf("step %s: %w", s.name, err)
		}
		res.Steps = append(res.Steps, sr)
	}

	return res, nil
}

// restoreSnapshotID is the snapshot the restore step actually uses: the
// re-encrypted copy when a KMS key is configured, the original otherwise.
func (o *Orchestrator) restoreSnapshotID() string {
	if o.kmsKey == "" {
		return o.snapshot
	}
	return CopyTargetID(o.snapshot)
}

// alreadyComplete detects a fully finished earlier run: the temporary
// instance is gone and the instance holding the source name carries the
// marker tag for this snapshot. A source instance without the marker means
// the swap has not happened yet.
func (o *Orchestrator) alreadyComplete(ctx context.Context, res *Result) (bool, error) {
	_, err := o.api.DescribeInstance(ctx, res.TempInstance)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, rdsapi.ErrInstanceNotFound) {
		return false, err
	}

	final, err := o.api.DescribeInstance(ctx, o.source)
	if errors.Is(err, rdsapi.ErrInstanceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return final.Tags[TagRestoredFrom] == res.RestoreSnapshotID, nil
}

// ensureSnapshot makes sure the snapshot the restore will use exists and is
// available. With a KMS key configured it copies the source snapshot under
// the derived copy identifier unless the copy is already present. An
// existing copy is trusted by name alone; its key is not compared against
// the configured one, since the derived name is only ever written by this
// tool with that key.
func (o *Orchestrator) ensureSnapshot(ctx context.Context, res *Result) (StepStatus, string, error) {
	target := res.RestoreSnapshotID

	if o.kmsKey == "" {
		o.logf("Using snapshot %s directly, no KMS re-encryption configured", target)
		if err := o.waitSnapshotAvailable(ctx, target); err != nil {
			return StepFailed, "", err
		}
		return StepSkipped, fmt.Sprintf("snapshot %s used as-is", target), nil
	}

	status := StepSkipped
	msg := fmt.Sprintf("snapshot copy %s already exists", target)

	_, err := o.api.DescribeSnapshot(ctx, target)
	switch {
	case errors.Is(err, rdsapi.ErrSnapshotNotFound):
		if _, serr := o.api.DescribeSnapshot(ctx, o.snapshot); serr != nil {
			return StepFailed, "", fmt.Errorf("source snapshot %s: %w", o.snapshot, serr)
		}
		o.logf("Copying snapshot %s to %s with KMS key %s", o.snapshot, target, o.kmsKey)
		if err := o.api.CopySnapshot(ctx, o.snapshot, target, o.kmsKey); err != nil {
			return StepFailed, "", err
		}
		status = StepCompleted
		msg = fmt.Sprintf("copied snapshot %s to %s", o.snapshot, target)
	case err != nil:
		return StepFailed, "", err
	default:
		o.logf("Snapshot copy %s already exists", target)
	}

	if err := o.waitSnapshotAvailable(ctx, target); err != nil {
		return StepFailed, "", err
	}
	return status, msg, nil
}

// restoreTemporary restores the snapshot into the temporary instance,
// propagating the configuration the snapshot does not carry from the source
// instance. An existing temporary instance is taken over from a prior run.
func (o *Orchestrator) restoreTemporary(ctx context.Context, res *Result) (StepStatus, string, error) {
	status := StepSkipped
	msg := fmt.Sprintf("temporary instance %s already exists", res.TempInstance)

	_, err := o.api.DescribeInstance(ctx, res.TempInstance)
	switch {
	case errors.Is(err, rdsapi.ErrInstanceNotFound):
		source, serr := o.api.DescribeInstance(ctx, o.source)
		if serr != nil {
			if errors.Is(serr, rdsapi.ErrInstanceNotFound) {
				return StepFailed, "", fmt.Errorf("source instance %s not found and no completed restore detected: %w", o.source, serr)
			}
			return StepFailed, "", serr
		}
		o.logf("Restoring %s from snapshot %s", res.TempInstance, res.RestoreSnapshotID)
		spec := rdsapi.RestoreSpec{
			InstanceIdentifier:  res.TempInstance,
			SnapshotIdentifier:  res.RestoreSnapshotID,
			InstanceClass:       source.InstanceClass,
			SubnetGroupName:     source.SubnetGroupName,
			OptionGroupName:     source.OptionGroupName,
			VPCSecurityGroupIDs: source.VPCSecurityGroupIDs,
			PubliclyAccessible:  source.PubliclyAccessible,
			Tags:                map[string]string{TagRestoredFrom: res.RestoreSnapshotID},
		}
		if err := o.api.RestoreInstanceFromSnapshot(ctx, spec); err != nil {
			return StepFailed, "", err
		}
		status = StepCompleted
		msg = fmt.Sprintf("restored %s from snapshot %s", res.TempInstance, res.RestoreSnapshotID)
	case err != nil:
		return StepFailed, "", err
	default:
		o.logf("Temporary instance %s already exists, waiting for it", res.TempInstance)
	}

	if _, err := o.waitInstanceAvailable(ctx, res.TempInstance, true); err != nil {
		return StepFailed, "", err
	}
	return status, msg, nil
}

// clearDeletionProtection drops the deletion protection flag on the source
// instance so the delete step can proceed. A missing source at this point
// means an earlier run got past the delete already.
func (o *Orchestrator) clearDeletionProtection(ctx context.Context, res *Result) (StepStatus, string, error) {
	source, err := o.api.DescribeInstance(ctx, o.source)
	if errors.Is(err, rdsapi.ErrInstanceNotFound) {
		return StepSkipped, fmt.Sprintf("source instance %s already deleted", o.source), nil
	}
	if err != nil {
		return StepFailed, "", err
	}
	if !source.DeletionProtection {
		return StepSkipped, "deletion protection not enabled", nil
	}

	o.logf("Disabling deletion protection on %s", o.source)
	if err := o.api.SetDeletionProtection(ctx, o.source, false); err != nil {
		return StepFailed, "", err
	}

	err = o.waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		inst, err := o.api.DescribeInstance(ctx, o.source)
		if err != nil {
			if errors.Is(err, rdsapi.ErrInstanceNotFound) || rdsapi.IsAuthorizationError(err) {
				return false, poll.Terminal(err)
			}
			return false, err
		}
		return !inst.DeletionProtection && inst.Status == statusAvailable, nil
	})
	if err != nil {
		return StepFailed, "", err
	}
	return StepCompleted, fmt.Sprintf("deletion protection disabled on %s", o.source), nil
}

// deleteSource deletes the original instance, skipping the final snapshot,
// and waits until the name is free.
func (o *Orchestrator) deleteSource(ctx context.Context, res *Result) (StepStatus, string, error) {
	_, err := o.api.DescribeInstance(ctx, o.source)
	if errors.Is(err, rdsapi.ErrInstanceNotFound) {
		return StepSkipped, fmt.Sprintf("source instance %s already deleted", o.source), nil
	}
	if err != nil {
		return StepFailed, "", err
	}

	o.logf("Deleting original instance %s", o.source)
	if err := o.api.DeleteInstance(ctx, o.source); err != nil && !errors.Is(err, rdsapi.ErrInstanceNotFound) {
		return StepFailed, "", err
	}

	if err := o.waitInstanceGone(ctx, o.source); err != nil {
		return StepFailed, "", err
	}
	return StepCompleted, fmt.Sprintf("deleted %s", o.source), nil
}

// renameRestored moves the source name onto the temporary instance. The
// delete step has confirmed the name is free before this runs.
func (o *Orchestrator) renameRestored(ctx context.Context, res *Result) (StepStatus, string, error) {
	o.logf("Renaming %s to %s", res.TempInstance, o.source)
	if err := o.api.RenameInstance(ctx, res.TempInstance, o.source); err != nil {
		return StepFailed, "", err
	}

	// The instance is unreachable under the new name while the rename
	// propagates, so not-found is retried here.
	final, err := o.waitInstanceAvailable(ctx, o.source, false)
	if err != nil {
		return StepFailed, "", err
	}
	res.FinalInstance = final
	res.Endpoint = final.Endpoint

	o.logf("Instance %s is available", o.source)
	return StepCompleted, fmt.Sprintf("renamed %s to %s", res.TempInstance, o.source), nil
}

// waitInstanceAvailable polls until the instance reports available and
// returns its last observed state. With notFoundFatal the wait aborts when
// the identifier stops resolving; otherwise not-found is retried.
func (o *Orchestrator) waitInstanceAvailable(ctx context.Context, id string, notFoundFatal bool) (*rdsapi.Instance, error) {
	var last *rdsapi.Instance
	err := o.waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		inst, err := o.api.DescribeInstance(ctx, id)
		if err != nil {
			if errors.Is(err, rdsapi.ErrInstanceNotFound) {
				if notFoundFatal {
					return false, poll.Terminal(err)
				}
				return false, nil
			}
			if rdsapi.IsAuthorizationError(err) {
				return false, poll.Terminal(err)
			}
			return false, err
		}
		last = inst
		if instanceFailureStatuses[inst.Status] {
			return false, poll.Terminal(fmt.Errorf("instance %s entered terminal status %q", id, inst.Status))
		}
		return inst.Status == statusAvailable, nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// waitInstanceGone polls until describe calls stop resolving the identifier.
func (o *Orchestrator) waitInstanceGone(ctx context.Context, id string) error {
	return o.waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		_, err := o.api.DescribeInstance(ctx, id)
		if errors.Is(err, rdsapi.ErrInstanceNotFound) {
			return true, nil
		}
		if err != nil {
			if rdsapi.IsAuthorizationError(err) {
				return false, poll.Terminal(err)
			}
			return false, err
		}
		return false, nil
	})
}

// waitSnapshotAvailable polls until the snapshot reports available. A
// snapshot that stops resolving or reaches a failure status aborts the run.
func (o *Orchestrator) waitSnapshotAvailable(ctx context.Context, id string) error {
	return o.waiter.Until(ctx, func(ctx context.Context) (bool, error) {
		snap, err := o.api.DescribeSnapshot(ctx, id)
		if err != nil {
			if errors.Is(err, rdsapi.ErrSnapshotNotFound) || rdsapi.IsAuthorizationError(err) {
				return false, poll.Terminal(err)
			}
			return false, err
		}
		if snapshotFailureStatuses[snap.Status] {
			return false, poll.Terminal(fmt.Errorf("snapshot %s entered terminal status %q", id, snap.Status))
		}
		return snap.Status == statusAvailable, nil
	})
}
