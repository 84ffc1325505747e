package interfaces

import (
	"context"
	"sync"

	"trading-relay/src/models"
)

// -----------------------------------------------------------------------------
// IEventSource is an external collaborator that emits relayable events
// (analytics queues and topics).
// -----------------------------------------------------------------------------

type IEventSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Start begins consuming.
	// ctx: controls the lifecycle (cancellation stops the source)
	// out: channel to push decoded events to
	// wg: WaitGroup to signal when the source has fully stopped
	Start(ctx context.Context, out chan<- models.MEvent, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop releases the underlying connection.
	Stop() error
}
