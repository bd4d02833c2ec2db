package rdsapi

import (
	"context"
	"errors"
)

var (
	// ErrInstanceNotFound is returned when a DB instance identifier does not resolve.
	ErrInstanceNotFound = errors.New("db instance not found")
	// ErrSnapshotNotFound is returned when a DB snapshot identifier does not resolve.
	ErrSnapshotNotFound = errors.New("db snapshot not found")
)

// Instance holds the subset of DB instance state the restore sequence cares about.
type Instance struct {
	Identifier          string
	ARN                 string
	Status              string
	Engine              string
	InstanceClass       string
	Endpoint            string
	Port                int32
	SubnetGroupName     string
	OptionGroupName     string
	VPCSecurityGroupIDs []string
	PubliclyAccessible  bool
	DeletionProtection  bool
	Tags                map[string]string
}

// Snapshot holds the subset of DB snapshot state the restore sequence cares about.
type Snapshot struct {
	Identifier string
	ARN        string
	Status     string
	Encrypted  bool
	KMSKeyID   string
}

// RestoreSpec describes a restore-from-snapshot request. Configuration the
// snapshot does not carry (class, networking, option group) is propagated
// from the source instance by the caller.
type RestoreSpec struct {
	InstanceIdentifier  string
	SnapshotIdentifier  string
	InstanceClass       string
	SubnetGroupName     string
	OptionGroupName     string
	VPCSecurityGroupIDs []string
	PubliclyAccessible  bool
	Tags                map[string]string
}

// API is the capability interface over the RDS control plane. The
// orchestrator only talks to this, so it can run against a fake in tests.
type API interface {
	// DescribeInstance returns the current state of an instance, or
	// ErrInstanceNotFound.
	DescribeInstance(ctx context.Context, id string) (*Instance, error)
	// DescribeSnapshot returns the current state of a snapshot, or
	// ErrSnapshotNotFound.
	DescribeSnapshot(ctx context.Context, id string) (*Snapshot, error)
	// CopySnapshot starts a snapshot copy, re-encrypting with kmsKeyARN when
	// it is non-empty. The copy proceeds asynchronously.
	CopySnapshot(ctx context.Context, sourceID, targetID, kmsKeyARN string) error
	// RestoreInstanceFromSnapshot starts a restore into a new instance.
	RestoreInstanceFromSnapshot(ctx context.Context, spec RestoreSpec) error
	// SetDeletionProtection toggles the deletion protection flag, applying
	// the modification immediately.
	SetDeletionProtection(ctx context.Context, id string, enabled bool) error
	// DeleteInstance deletes an instance, skipping the final snapshot and
	// removing automated backups.
	DeleteInstance(ctx context.Context, id string) error
	// RenameInstance changes an instance identifier, applying immediately.
	// The instance is only reachable under newID once the rename settles.
	RenameInstance(ctx context.Context, oldID, newID string) error
}
