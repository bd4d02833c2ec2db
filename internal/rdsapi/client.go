package rdsapi

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsrds "github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
)

// Client adapts the AWS SDK RDS client to the API interface.
type Client struct {
	rds *awsrds.Client
}

// NewClient builds a Client from a resolved AWS config. AWS_ENDPOINT_URL
// overrides the endpoint for localstack-style setups.
func NewClient(awsConfig aws.Config) *Client {
	var options []func(*awsrds.Options)
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		options = append(options, func(o *awsrds.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return &Client{
		rds: awsrds.NewFromConfig(awsConfig, options...),
	}
}

func (c *Client) DescribeInstance(ctx context.Context, id string) (*Instance, error) {
	output, err := c.rds.DescribeDBInstances(ctx, &awsrds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err != nil {
		var notFound *types.DBInstanceNotFoundFault
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("instance %s: %w", id, ErrInstanceNotFound)
		}
		return nil, fmt.Errorf("failed to describe DB instance %s: %w", id, err)
	}
	if len(output.DBInstances) == 0 {
		return nil, fmt.Errorf("instance %s: %w", id, ErrInstanceNotFound)
	}
	return mapInstance(&output.DBInstances[0]), nil
}

func (c *Client) DescribeSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	output, err := c.rds.DescribeDBSnapshots(ctx, &awsrds.DescribeDBSnapshotsInput{
		DBSnapshotIdentifier: aws.String(id),
	})
	if err != nil {
		var notFound *types.DBSnapshotNotFoundFault
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("snapshot %s: %w", id, ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to describe DB snapshot %s: %w", id, err)
	}
	if len(output.DBSnapshots) == 0 {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrSnapshotNotFound)
	}
	snap := output.DBSnapshots[0]
	return &Snapshot{
		Identifier: aws.ToString(snap.DBSnapshotIdentifier),
		ARN:        aws.ToString(snap.DBSnapshotArn),
		Status:     aws.ToString(snap.Status),
		Encrypted:  aws.ToBool(snap.Encrypted),
		KMSKeyID:   aws.ToString(snap.KmsKeyId),
	}, nil
}

func (c *Client) CopySnapshot(ctx context.Context, sourceID, targetID, kmsKeyARN string) error {
	input := &awsrds.CopyDBSnapshotInput{
		SourceDBSnapshotIdentifier: aws.String(sourceID),
		TargetDBSnapshotIdentifier: aws.String(targetID),
	}
	if kmsKeyARN != "" {
		input.KmsKeyId = aws.String(kmsKeyARN)
	}
	if _, err := c.rds.CopyDBSnapshot(ctx, input); err != nil {
		return fmt.Errorf("failed to copy DB snapshot %s to %s: %w", sourceID, targetID, err)
	}
	return nil
}

func (c *Client) RestoreInstanceFromSnapshot(ctx context.Context, spec RestoreSpec) error {
	input := &awsrds.RestoreDBInstanceFromDBSnapshotInput{
		DBInstanceIdentifier: aws.String(spec.InstanceIdentifier),
		DBSnapshotIdentifier: aws.String(spec.SnapshotIdentifier),
		PubliclyAccessible:   aws.Bool(spec.PubliclyAccessible),
		Tags:                 convertTags(spec.Tags),
	}
	if spec.InstanceClass != "" {
		input.DBInstanceClass = aws.String(spec.InstanceClass)
	}
	if spec.SubnetGroupName != "" {
		input.DBSubnetGroupName = aws.String(spec.SubnetGroupName)
	}
	if spec.OptionGroupName != "" {
		input.OptionGroupName = aws.String(spec.OptionGroupName)
	}
	if len(spec.VPCSecurityGroupIDs) > 0 {
		input.VpcSecurityGroupIds = spec.VPCSecurityGroupIDs
	}
	if _, err := c.rds.RestoreDBInstanceFromDBSnapshot(ctx, input); err != nil {
		return fmt.Errorf("failed to restore DB instance %s from snapshot %s: %w",
			spec.InstanceIdentifier, spec.SnapshotIdentifier, err)
	}
	return nil
}

func (c *Client) SetDeletionProtection(ctx context.Context, id string, enabled bool) error {
	_, err := c.rds.ModifyDBInstance(ctx, &awsrds.ModifyDBInstanceInput{
		DBInstanceIdentifier: aws.String(id),
		DeletionProtection:   aws.Bool(enabled),
		ApplyImmediately:     aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to set deletion protection on %s: %w", id, err)
	}
	return nil
}

func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	_, err := c.rds.DeleteDBInstance(ctx, &awsrds.DeleteDBInstanceInput{
		DBInstanceIdentifier:   aws.String(id),
		SkipFinalSnapshot:      aws.Bool(true),
		DeleteAutomatedBackups: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.DBInstanceNotFoundFault
		if errors.As(err, &notFound) {
			return fmt.Errorf("instance %s: %w", id, ErrInstanceNotFound)
		}
		return fmt.Errorf("failed to delete DB instance %s: %w", id, err)
	}
	return nil
}

func (c *Client) RenameInstance(ctx context.Context, oldID, newID string) error {
	_, err := c.rds.ModifyDBInstance(ctx, &awsrds.ModifyDBInstanceInput{
		DBInstanceIdentifier:    aws.String(oldID),
		NewDBInstanceIdentifier: aws.String(newID),
		ApplyImmediately:        aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to rename DB instance %s to %s: %w", oldID, newID, err)
	}
	return nil
}

func convertTags(tags map[string]string) []types.Tag {
	var rdsTags []types.Tag
	for k, v := range tags {
		rdsTags = append(rdsTags, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(v),
		})
	}
	return rdsTags
}

func mapInstance(db *types.DBInstance) *Instance {
	instance := &Instance{
		Identifier:         aws.ToString(db.DBInstanceIdentifier),
		ARN:                aws.ToString(db.DBInstanceArn),
		Status:             aws.ToString(db.DBInstanceStatus),
		Engine:             aws.ToString(db.Engine),
		InstanceClass:      aws.ToString(db.DBInstanceClass),
		PubliclyAccessible: aws.ToBool(db.PubliclyAccessible),
		DeletionProtection: aws.ToBool(db.DeletionProtection),
	}

	if db.Endpoint != nil {
		instance.Endpoint = aws.ToString(db.Endpoint.Address)
		instance.Port = aws.ToInt32(db.Endpoint.Port)
	}
	if db.DBSubnetGroup != nil {
		instance.SubnetGroupName = aws.ToString(db.DBSubnetGroup.DBSubnetGroupName)
	}
	if len(db.OptionGroupMemberships) > 0 {
		instance.OptionGroupName = aws.ToString(db.OptionGroupMemberships[0].OptionGroupName)
	}
	for _, sg := range db.VpcSecurityGroups {
		instance.VPCSecurityGroupIDs = append(instance.VPCSecurityGroupIDs, aws.ToString(sg.VpcSecurityGroupId))
	}
	if len(db.TagList) > 0 {
		instance.Tags = make(map[string]string, len(db.TagList))
		for _, tag := range db.TagList {
			instance.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}

	return instance
}
