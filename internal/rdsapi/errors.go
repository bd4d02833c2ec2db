package rdsapi

import (
	"errors"

	"github.com/aws/smithy-go"
)

// IsAuthorizationError reports whether err is an access or credential
// failure from the API. These never resolve by retrying.
func IsAuthorizationError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied",
		"AccessDeniedException",
		"UnauthorizedOperation",
		"InvalidClientTokenId",
		"UnrecognizedClientException",
		"ExpiredToken":
		return true
	}
	return false
}
