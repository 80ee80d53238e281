package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/store"
)

// Handler consumes one inbound message and always produces the reply to send,
// along with the session step the turn ended on. Implemented by the flow
// router.
type Handler interface {
	HandleMessage(ctx context.Context, msg models.Message) (models.Reply, models.Step)
}

// Dispatcher pumps inbound messages from a Service through the Handler and
// sends the replies back, logging both directions to the transcript store.
// Messages from different users are handled concurrently; the session store's
// per-session locking serializes turns of the same user.
type Dispatcher struct {
	service     Service
	handler     Handler
	transcripts store.Store
}

// NewDispatcher creates a dispatcher. transcripts may be nil to disable logging.
func NewDispatcher(service Service, handler Handler, transcripts store.Store) *Dispatcher {
	return &Dispatcher{service: service, handler: handler, transcripts: transcripts}
}

// Run consumes inbound messages until the channel closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher running")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping: context cancelled")
			return
		case msg, ok := <-d.service.Messages():
			if !ok {
				slog.Info("Dispatcher stopping: message channel closed")
				return
			}
			go d.handleOne(ctx, msg)
		}
	}
}

func (d *Dispatcher) handleOne(ctx context.Context, msg models.Message) {
	from, err := d.service.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Warn("Dispatcher dropping message with invalid sender", "from", msg.From, "error", err)
		return
	}
	msg.From = from

	reply, step := d.handler.HandleMessage(ctx, msg)
	d.logTurn(from, store.DirectionInbound, msg.Text, step)
	d.logTurn(from, store.DirectionOutbound, reply.Text, step)

	if err := d.service.SendReply(ctx, from, reply); err != nil {
		slog.Error("Dispatcher failed to send reply", "to", from, "error", err)
	}
}

func (d *Dispatcher) logTurn(userID, direction, body string, step models.Step) {
	if d.transcripts == nil || body == "" {
		return
	}
	entry := store.TranscriptEntry{
		UserID:    userID,
		Direction: direction,
		Body:      body,
		Step:      string(step),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.transcripts.LogTurn(entry); err != nil {
		slog.Warn("Transcript logging failed", "user", userID, "direction", direction, "error", err)
	}
}
