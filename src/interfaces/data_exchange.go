package interfaces

import "trading-relay/src/models"

// -----------------------------------------------------------------------------
// IEventPublisher fans normalized events out to downstream clients.
// -----------------------------------------------------------------------------

type IEventPublisher interface {
	// Publish must never block the caller.
	Publish(evt models.MEvent)
}

// IStatePublisher is implemented by publishers whose subscribers bootstrap
// from the state store. apply and the publish happen atomically with respect
// to new subscriptions.
type IStatePublisher interface {
	IEventPublisher
	PublishAfter(apply func(), evt models.MEvent)
}
