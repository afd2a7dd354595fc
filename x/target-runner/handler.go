package targetrunner

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/x/wire"
)

// Handler decodes ReceiveVars envelopes addressed to this runner's target and queues them.
// Other envelopes are ignored.
func (r *Runner[T]) Handler(ids wire.IDCodec[T]) func(ctx context.Context, msg *structpb.Struct) error {
	name := r.Name()
	return func(ctx context.Context, msg *structpb.Struct) error {
		kind, targetName := wire.Peek(msg)
		if kind != wire.KindReceiveVars || targetName != name {
			return nil
		}
		m, err := wire.Decode(msg, ids)
		if err != nil {
			return fmt.Errorf("target-runner: %w", err)
		}
		return r.Receive(ctx, m.ID, m.Batches)
	}
}
