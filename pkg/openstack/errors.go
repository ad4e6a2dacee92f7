package openstack

import (
	"errors"
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/younsl/snapshooter/pkg/cloud"
)

// translateError maps gophercloud HTTP errors onto the cloud error classes
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var notFound gophercloud.ErrDefault404
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", cloud.ErrNotFound, err)
	}
	var forbidden gophercloud.ErrDefault403
	if errors.As(err, &forbidden) {
		return fmt.Errorf("%w: %w", cloud.ErrForbidden, err)
	}
	return err
}
