package ports

import (
	"context"
	"time"
)

// BlockCache holds the sorted active block list.
// A miss returns found=false and no error.
type BlockCache interface {
	GetActiveBlocks(ctx context.Context) (blocks []string, found bool, err error)
	PutActiveBlocks(ctx context.Context, blocks []string, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}
