package notify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/models"
)

var (
	ErrUnknownType       = apperr.New(apperr.KindValidation, "unknown_interaction_type", "unknown interaction type")
	ErrRecipientRequired = apperr.New(apperr.KindValidation, "recipient_required", "recipient_id is required")
)

var knownTypes = map[models.InteractionType]struct{}{
	models.InteractionLike:               {},
	models.InteractionComment:            {},
	models.InteractionMention:            {},
	models.InteractionConnectionRequest:  {},
	models.InteractionConnectionAccepted: {},
	models.InteractionApplicationUpdate:  {},
}

// Broadcaster delivers events to a user's personal room.
type Broadcaster interface {
	BroadcastToUser(userID, event string, payload any)
}

// Notifier pushes interaction notifications to their recipient.
type Notifier struct {
	bus    Broadcaster
	now    func() time.Time
	logger *zap.Logger
}

func NewNotifier(bus Broadcaster, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{bus: bus, now: time.Now, logger: logger}
}

// Notify reports whether the notification was sent. Self-interactions are
// dropped silently.
func (n *Notifier) Notify(ctx context.Context, in models.Interaction) (bool, error) {
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	if in.RecipientID == "" {
		return false, ErrRecipientRequired
	}
	if _, ok := knownTypes[in.Type]; !ok {
		return false, ErrUnknownType
	}
	if in.ActorID == in.RecipientID {
		return false, nil
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = n.now().UTC()
	}

	n.bus.BroadcastToUser(in.RecipientID, models.EventInteractionNotified, in)
	n.logger.Debug("interaction notified",
		zap.String("type", string(in.Type)),
		zap.String("actor_id", in.ActorID),
		zap.String("recipient_id", in.RecipientID))
	return true, nil
}
