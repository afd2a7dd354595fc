package messenger

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"
)

// Broadcaster is used by the messenger to broadcast envelopes
type Broadcaster interface {
	// Broadcast sends msg to every endpoint except to "excludeID"
	Broadcast(ctx context.Context, msg *structpb.Struct, excludeID string) error
}
