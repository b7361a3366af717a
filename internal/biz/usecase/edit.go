package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// EditUsecase replays source edits on the mapped destination messages
type EditUsecase struct {
	messenger repo.MessengerRepo
	mappings  repo.MappingRepo
	log       zerolog.Logger
}

// NewEditUsecase creates a new edit usecase
func NewEditUsecase(messenger repo.MessengerRepo, mappings repo.MappingRepo, log zerolog.Logger) *EditUsecase {
	return &EditUsecase{
		messenger: messenger,
		mappings:  mappings,
		log:       log.With().Str("component", "edit").Logger(),
	}
}

// Edit forwards the new raw text to every mapped destination message
func (uc *EditUsecase) Edit(ctx context.Context, ev *domain.EditedEvent) (*domain.EditReport, error) {
	report := &domain.EditReport{}
	log := uc.log.With().Str("chat_id", ev.ChatID).Str("message_id", ev.MessageID).Logger()

	mappings, err := uc.mappings.Lookup(ctx, ev.ChatID, ev.MessageID)
	if err != nil {
		return report, err
	}
	if len(mappings) == 0 {
		log.Info().Msg("No mapping for edited message")
		return report, nil
	}
	report.Found = true

	targets := make([]string, len(mappings))
	index := domain.DestinationIndex(mappings)
	for i, m := range mappings {
		targets[i] = m.DestinationChatID
	}

	outcomes := fanOut(ctx, targets, nil, func(ctx context.Context, dest string) domain.DeliveryOutcome {
		destID := index[dest]
		err := uc.messenger.EditText(ctx, dest, destID, ev.Text)
		if err != nil {
			log.Error().Err(err).Str("dest", dest).Str("dest_message_id", destID).Msg("Destination edit failed")
		}
		return domain.DeliveryOutcome{Destination: dest, MessageID: destID, Err: err}
	})
	for _, o := range outcomes {
		if o.OK() {
			report.Edited++
		} else if !o.Skipped {
			report.Errors++
		}
	}

	log.Info().Int("edited", report.Edited).Int("errors", report.Errors).Msg("Edit replayed")
	return report, nil
}
