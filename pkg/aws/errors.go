package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/younsl/snapshooter/pkg/cloud"
)

var (
	notFoundCodes = map[string]bool{
		"InvalidSnapshot.NotFound": true,
		"InvalidVolume.NotFound":   true,
	}
	forbiddenCodes = map[string]bool{
		"UnauthorizedOperation": true,
		"AccessDenied":          true,
		"AccessDeniedException": true,
	}
)

// translateError maps EC2 and STS API errors onto the cloud error classes
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch code := apiErr.ErrorCode(); {
	case notFoundCodes[code]:
		return fmt.Errorf("%w: %w", cloud.ErrNotFound, err)
	case forbiddenCodes[code]:
		return fmt.Errorf("%w: %w", cloud.ErrForbidden, err)
	}
	return err
}
