package picks

import (
	"context"
	"errors"

	"github.com/wonny/tailgame/internal/contracts"
)

// ErrNotFound is returned when no pick exists for the requested key
var ErrNotFound = errors.New("pick not found")

// Store persists session picks and cycle summaries
// ⭐ SSOT: picks history is read and written through this interface only
type Store interface {
	// SavePick upserts on (trade_date, kind)
	SavePick(ctx context.Context, p *contracts.Pick) error
	// GetPick returns ErrNotFound when the day has no pick of that kind
	GetPick(ctx context.Context, tradeDate string, kind contracts.PickKind) (*contracts.Pick, error)
	// ListPicks returns picks with from <= trade_date <= to, newest first
	ListPicks(ctx context.Context, from, to string) ([]contracts.Pick, error)
	// DeletePicks removes every pick of a trade date
	DeletePicks(ctx context.Context, tradeDate string) error
	// SaveCycle appends one poll-cycle summary
	SaveCycle(ctx context.Context, c *contracts.CycleSummary) error
	// ListCycles returns the latest cycles of a trade date, newest first
	ListCycles(ctx context.Context, tradeDate string, limit int) ([]contracts.CycleSummary, error)
}
