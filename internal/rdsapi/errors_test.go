package rdsapi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsAuthorizationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, true},
		{"access denied exception", &smithy.GenericAPIError{Code: "AccessDeniedException"}, true},
		{"unauthorized operation", &smithy.GenericAPIError{Code: "UnauthorizedOperation"}, true},
		{"invalid client token", &smithy.GenericAPIError{Code: "InvalidClientTokenId"}, true},
		{"unrecognized client", &smithy.GenericAPIError{Code: "UnrecognizedClientException"}, true},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredToken"}, true},
		{"throttling is retryable", &smithy.GenericAPIError{Code: "Throttling"}, false},
		{"not found fault is not auth", &smithy.GenericAPIError{Code: "DBInstanceNotFound"}, false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthorizationError(tt.err))
		})
	}
}

func TestIsAuthorizationErrorSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("failed to describe DB instance mydb: %w",
		&smithy.GenericAPIError{Code: "AccessDenied", Message: "not authorized"})
	assert.True(t, IsAuthorizationError(err))
}
