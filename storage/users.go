package storage

import (
	"context"
	"time"
)

// UpsertUserRecord stores the bookkeeping copy of a newly created account.
func (c *Client) UpsertUserRecord(ctx context.Context, userID, email string, createdAt time.Time) error {
	return c.patchDocument(ctx, "upsert user record", c.userRecordPath(userID), encodeUserRecord(email, createdAt))
}
