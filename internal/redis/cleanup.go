package redis

import (
	"context"
	"fmt"
)

// ReleaseMemberships removes userID from each of roomIDs in one pipeline.
// Each SREM is atomic on its own; the batch is not transactional.
func (s *RedisStore) ReleaseMemberships(ctx context.Context, userID string, roomIDs []string) error {
	if len(roomIDs) == 0 {
		return nil
	}

	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("redis ReleaseMemberships: %w", err)
	}
	defer release()

	pipe := s.rdb.Pipeline()
	for _, roomID := range roomIDs {
		pipe.SRem(ctx, roomKey(roomID), userID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ReleaseMemberships failed: %w", err)
	}
	return nil
}
