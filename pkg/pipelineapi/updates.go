package pipelineapi

import (
	"context"
	"time"
)

// UpdateChecker adapts Client.DataUpdates to the staleness check contract.
type UpdateChecker struct {
	Client Client
}

// HasChangedSince reports whether the backend has new computed data since t.
func (u UpdateChecker) HasChangedSince(ctx context.Context, since time.Time) (bool, error) {
	resp, err := u.Client.DataUpdates(ctx, since)
	if err != nil {
		return false, err
	}
	return resp.HasUpdates, nil
}
