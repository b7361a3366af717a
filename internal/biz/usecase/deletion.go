package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// DeletionUsecase propagates source deletions to every destination.
// It never consults the schedule gate.
type DeletionUsecase struct {
	messenger repo.MessengerRepo
	mappings  repo.MappingRepo
	coord     *Coordinator
	log       zerolog.Logger
}

// NewDeletionUsecase creates a new deletion usecase
func NewDeletionUsecase(
	messenger repo.MessengerRepo,
	mappings repo.MappingRepo,
	coord *Coordinator,
	log zerolog.Logger,
) *DeletionUsecase {
	return &DeletionUsecase{
		messenger: messenger,
		mappings:  mappings,
		coord:     coord,
		log:       log.With().Str("component", "deletion").Logger(),
	}
}

// Delete processes one batch of deleted source messages
func (uc *DeletionUsecase) Delete(ctx context.Context, ev *domain.DeletedEvent) (*domain.DeletionReport, error) {
	report := &domain.DeletionReport{}
	if len(ev.MessageIDs) == 0 {
		return report, nil
	}

	release, err := uc.coord.AcquireForDeletion(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire deletion lock: %w", err)
	}
	defer release()

	for _, id := range ev.MessageIDs {
		uc.deleteOne(ctx, ev.ChatID, id, report)
	}

	uc.log.Info().
		Str("chat_id", ev.ChatID).
		Int("batch", len(ev.MessageIDs)).
		Int("deleted", report.Deleted).
		Int("not_found", report.NotFound).
		Int("errors", report.Errors).
		Msg("Deletion batch processed")
	return report, nil
}

func (uc *DeletionUsecase) deleteOne(ctx context.Context, chatID, id string, report *domain.DeletionReport) {
	log := uc.log.With().Str("chat_id", chatID).Str("message_id", id).Logger()

	mappings, err := uc.mappings.Lookup(ctx, chatID, id)
	if err != nil {
		log.Error().Err(err).Msg("Mapping lookup failed")
		report.Errors++
		return
	}
	if len(mappings) == 0 {
		// The message may still be on its way into the relay pipeline
		uc.coord.MarkRecalled(chatID, id)
		log.Debug().Msg("No mapping for deleted message")
		report.NotFound++
		return
	}

	targets := make([]string, len(mappings))
	index := domain.DestinationIndex(mappings)
	for i, m := range mappings {
		targets[i] = m.DestinationChatID
	}

	outcomes := fanOut(ctx, targets, nil, func(ctx context.Context, dest string) domain.DeliveryOutcome {
		destID := index[dest]
		err := uc.messenger.DeleteMessage(ctx, dest, destID)
		if err != nil {
			log.Debug().Err(err).Str("dest", dest).Str("dest_message_id", destID).Msg("Destination delete failed")
		}
		return domain.DeliveryOutcome{Destination: dest, MessageID: destID, Err: err}
	})
	for _, o := range outcomes {
		switch {
		case o.OK():
			report.Deleted++
		case !o.Skipped:
			report.Errors++
		}
	}

	// The mapping goes whether or not every destination delete succeeded
	if err := uc.mappings.Delete(ctx, chatID, id); err != nil {
		log.Error().Err(err).Msg("Failed to remove mapping")
	}
}
