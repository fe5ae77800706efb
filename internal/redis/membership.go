package redis

import (
	"context"
	"fmt"
)

func roomKey(roomID string) string {
	return fmt.Sprintf("room:%s:userId", roomID)
}

func (s *RedisStore) AddMember(ctx context.Context, roomID, userID string) error {
	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("redis AddMember: %w", err)
	}
	defer release()

	if err := s.rdb.SAdd(ctx, roomKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("redis AddMember failed: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("redis RemoveMember: %w", err)
	}
	defer release()

	if err := s.rdb.SRem(ctx, roomKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("redis RemoveMember failed: %w", err)
	}
	return nil
}

// Members returns the user IDs currently in roomID. The result is a snapshot;
// callers must not cache it across messages.
func (s *RedisStore) Members(ctx context.Context, roomID string) ([]string, error) {
	ctx, release, err := s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis Members: %w", err)
	}
	defer release()

	members, err := s.rdb.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis Members failed: %w", err)
	}
	return members, nil
}
