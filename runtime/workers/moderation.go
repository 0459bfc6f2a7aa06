package workers

import (
	"context"
	"log/slog"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/domain/event"
	"pairchat/moderation"

	"github.com/abadojack/whatlanggo"
)

var _ contract.Worker = (*ModerationWorker)(nil)

// ModerationWorker sits between the append path and the fan-out: every
// appended TEXT message gets its body censored before any recipient
// session ever sees it. Non-message events pass through untouched.
type ModerationWorker struct {
	moderator moderation.Moderator
	rawEvents chan event.DomainEvent
	events    chan event.DomainEvent
	log       *slog.Logger
}

func NewModerationWorker(moderator moderation.Moderator,
	rawEvents, events chan event.DomainEvent, log *slog.Logger) *ModerationWorker {
	return &ModerationWorker{
		moderator: moderator,
		rawEvents: rawEvents,
		events:    events,
		log:       log,
	}
}

func (w *ModerationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case e, ok := <-w.rawEvents:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			out := e
			if appended, isMessage := e.(event.MessageAppended); isMessage {
				out = w.toSanitizedEvent(appended)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case w.events <- out:
			}
		}
	}
}

func (w *ModerationWorker) toSanitizedEvent(evt event.MessageAppended) event.SanitizedMessage {
	sanitized := evt.Message
	var foundWords []string
	var langCode string

	if evt.Message.Kind == domain.KindText {
		info := whatlanggo.Detect(evt.Message.Body)
		langCode = info.Lang.Iso6391()

		sanitized.Body, foundWords = w.moderator.Censor(evt.Message.Body)
		if len(foundWords) > 0 {
			w.log.Warn("Censored message body",
				"message_id", evt.Message.ID,
				"lang", langCode,
				"author", evt.Message.AuthorID,
				"words", len(foundWords))
		}
	}

	return event.SanitizedMessage{
		Message:       sanitized,
		Recipient:     evt.Recipient,
		Lang:          langCode,
		CensoredWords: foundWords,
	}
}
