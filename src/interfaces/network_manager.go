package interfaces

import (
	"context"

	"trading-relay/src/codec"
	"trading-relay/src/models"
)

// -----------------------------------------------------------------------------
// IUpstreamLink is the view of the brokerage connection used by command
// handlers and the push endpoint.
// -----------------------------------------------------------------------------

type IUpstreamLink interface {

	// Request sends a correlated request and waits for its reply.
	Request(ctx context.Context, req codec.Request) (codec.Frame, error)

	// -----------------------------------------------------------------------------

	// State returns the current link state name.
	State() string

	IsConnected() bool
	IsAuthorized() bool

	// -----------------------------------------------------------------------------

	// SwitchCredential tears the connection down and re-authorizes with cred.
	SwitchCredential(cred models.Credential)

	// -----------------------------------------------------------------------------

	// Subscribe / Unsubscribe record owner's interest in symbol; upstream is
	// subscribed on first interest and forgotten after the last.
	Subscribe(owner, symbol string)
	Unsubscribe(owner, symbol string)
	ReleaseOwner(owner string)
}
