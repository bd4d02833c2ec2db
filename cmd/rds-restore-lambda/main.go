// Lambda entrypoint. The function is configured entirely through its
// environment (SOURCE_DB, SNAPSHOT_ID, optional KMS_KEY_ARN); the
// invocation payload carries no data.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/restoreops/rds-restore/internal/config"
	"github.com/restoreops/rds-restore/internal/rdsapi"
	"github.com/restoreops/rds-restore/internal/restore"
)

// Response is the API-gateway-style shape callers of this function expect.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func handler(ctx context.Context, event json.RawMessage) (Response, error) {
	log.Printf("Event received: %s", event)

	cfg, err := config.FromEnv()
	if err != nil {
		return Response{}, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	orchestrator := restore.New(rdsapi.NewClient(awsCfg), restore.Config{
		SourceInstance: cfg.Restore.SourceDB,
		SnapshotID:     cfg.Restore.SnapshotID,
		KMSKeyARN:      cfg.Restore.KMSKeyARN,
		PollInterval:   cfg.Restore.PollInterval(),
		StepTimeout:    cfg.Restore.StepTimeout(),
		Logf:           log.Printf,
	})

	result, err := orchestrator.Run(ctx)
	if err != nil {
		// Propagate so the platform records the invocation as failed. No
		// rollback of steps that already ran.
		return Response{}, err
	}

	body := fmt.Sprintf("Restored snapshot to new instance, deleted original, and renamed restored to %s.",
		result.SourceInstance)
	if result.AlreadyComplete {
		body = fmt.Sprintf("Instance %s already restored from snapshot %s.",
			result.SourceInstance, result.RestoreSnapshotID)
	}
	return Response{StatusCode: 200, Body: body}, nil
}

func main() {
	lambda.Start(handler)
}
