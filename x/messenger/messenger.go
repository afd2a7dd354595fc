package messenger

import (
	"cmp"
	"context"

	"github.com/rs/zerolog"

	"github.com/compose-network/interpolation-target/x/target"
	"github.com/compose-network/interpolation-target/x/wire"
)

// Messenger sends the messages of one interpolation target over a Broadcaster.
// Sends are fire-and-forget: failures are logged, never returned.
type Messenger[T cmp.Ordered] struct {
	ctx         context.Context
	logger      zerolog.Logger
	broadcaster Broadcaster
	ids         wire.IDCodec[T]

	// sender is the endpoint id this messenger speaks for.
	sender string
	target string
}

var _ target.Messenger[float64] = (*Messenger[float64])(nil)

func NewMessenger[T cmp.Ordered](
	ctx context.Context,
	logger zerolog.Logger,
	broadcaster Broadcaster,
	ids wire.IDCodec[T],
	sender, targetName string,
) *Messenger[T] {
	return &Messenger[T]{
		ctx:         ctx,
		logger:      logger,
		broadcaster: broadcaster,
		ids:         ids,
		sender:      sender,
		target:      targetName,
	}
}

// SendRequestPoints broadcasts a RequestPoints message
func (n *Messenger[T]) SendRequestPoints(id T, indices []uint64) {
	n.send(wire.Message[T]{Kind: wire.KindRequestPoints, ID: id, Indices: indices})
}

// SendCleanUp broadcasts a CleanUp message
func (n *Messenger[T]) SendCleanUp(id T) {
	n.send(wire.Message[T]{Kind: wire.KindCleanUp, ID: id})
}

// SendReceiveVars broadcasts interpolated values back to the coordinator
func (n *Messenger[T]) SendReceiveVars(id T, batches []target.Batch) {
	n.send(wire.Message[T]{Kind: wire.KindReceiveVars, ID: id, Batches: batches})
}

func (n *Messenger[T]) send(m wire.Message[T]) {
	m.Sender = n.sender
	m.Target = n.target

	env, err := wire.Encode(m, n.ids)
	if err != nil {
		n.logger.Error().Err(err).Str("kind", string(m.Kind)).Msg("Failed to encode message")
		return
	}
	if err := n.broadcaster.Broadcast(n.ctx, env, n.sender); err != nil {
		n.logger.Error().Err(err).Str("kind", string(m.Kind)).Msg("Failed to broadcast message")
	}
}
