package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// Gate is the read side of the schedule gate
type Gate interface {
	IsActive() bool
}

type relaySnapshot struct {
	settings domain.RelaySettings
	filter   *ContentFilter
}

// RelayUsecase is the replication pipeline for new messages
type RelayUsecase struct {
	messenger repo.MessengerRepo
	mappings  repo.MappingRepo
	resolver  *MediaResolver
	gate      Gate
	coord     *Coordinator
	snapshot  atomic.Pointer[relaySnapshot]
	now       func() time.Time
	log       zerolog.Logger
}

// NewRelayUsecase creates a new relay usecase
func NewRelayUsecase(
	messenger repo.MessengerRepo,
	mappings repo.MappingRepo,
	resolver *MediaResolver,
	gate Gate,
	coord *Coordinator,
	settings domain.RelaySettings,
	log zerolog.Logger,
) *RelayUsecase {
	uc := &RelayUsecase{
		messenger: messenger,
		mappings:  mappings,
		resolver:  resolver,
		gate:      gate,
		coord:     coord,
		now:       time.Now,
		log:       log.With().Str("component", "relay").Logger(),
	}
	uc.UpdateSettings(settings)
	return uc
}

// UpdateSettings atomically swaps the rule set and destination list
func (uc *RelayUsecase) UpdateSettings(settings domain.RelaySettings) {
	uc.snapshot.Store(&relaySnapshot{
		settings: settings,
		filter:   NewContentFilter(settings.Filter),
	})
}

// Settings returns the current settings snapshot
func (uc *RelayUsecase) Settings() domain.RelaySettings {
	return uc.snapshot.Load().settings
}

// Relay runs one new message through the pipeline:
//  1. gate check, admin commands bypass it
//  2. classification
//  3. content filter for text-only messages
//  4. text-only mode check
//  5. media substitution, else zero-copy reference, else download
//  6. fan-out to every destination with mapping writes
//
// Steps 5 and 6 run inside the coordinator domain, so a deletion of the same
// message either sees every mapping or leaves a recall marker behind.
// Returns an error only when the pipeline could not run at all.
func (uc *RelayUsecase) Relay(ctx context.Context, msg *domain.Message) (*domain.RelayReport, error) {
	snap := uc.snapshot.Load()
	report := &domain.RelayReport{MessageID: msg.ID, Kind: msg.Kind()}
	log := uc.log.With().Str("chat_id", msg.ChatID).Str("message_id", msg.ID).Logger()

	command := !msg.HasMedia() && domain.IsAdminCommand(msg.Text)
	if !command && !uc.gate.IsActive() {
		log.Debug().Msg("Relay inactive by schedule, message ignored")
		report.Result = domain.ResultInactive
		return report, nil
	}

	log.Debug().Str("kind", string(report.Kind)).Bool("command", command).Msg("Message received")

	text := msg.Text
	if !msg.HasMedia() {
		res := snap.filter.Apply(text)
		if res.Blocked {
			log.Info().Str("word", res.Match).Msg("Message blocked by filter")
			report.Result = domain.ResultBlocked
			return report, nil
		}
		text = res.Text
		if text == "" {
			report.Result = domain.ResultEmpty
			return report, nil
		}
	} else if snap.settings.TextOnly {
		log.Debug().Msg("Text-only mode, media message skipped")
		report.Result = domain.ResultTextOnly
		return report, nil
	}

	if len(snap.settings.Destinations) == 0 {
		report.Result = domain.ResultNoDestinations
		return report, nil
	}

	release, err := uc.coord.AcquireForMessage(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire relay lock: %w", err)
	}
	defer release()

	if uc.coord.TakeRecalled(msg.ChatID, msg.ID) {
		log.Info().Msg("Message deleted before relay, skipped")
		report.Result = domain.ResultRecalled
		return report, nil
	}

	var media *domain.OutboundMedia
	if msg.HasMedia() {
		media, err = uc.resolveMedia(ctx, msg, snap.settings.Media, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prepare media")
			report.Result = domain.ResultMediaFailed
			return report, nil
		}
	}

	// Admin commands keep flowing after the gate closes
	var active func() bool
	if !command {
		active = uc.gate.IsActive
	}
	report.Outcomes = fanOut(ctx, snap.settings.Destinations, active,
		func(ctx context.Context, dest string) domain.DeliveryOutcome {
			return uc.deliver(ctx, msg, dest, text, media, log)
		})
	report.Result = domain.ResultRelayed

	log.Info().
		Str("kind", string(report.Kind)).
		Int("delivered", report.Delivered()).
		Int("failed", report.Failed()).
		Msg("Message relayed")
	return report, nil
}

// resolveMedia prefers a configured replacement asset, then a zero-copy
// reference, then a full download and re-upload.
func (uc *RelayUsecase) resolveMedia(
	ctx context.Context,
	msg *domain.Message,
	rules domain.MediaRules,
	log zerolog.Logger,
) (*domain.OutboundMedia, error) {
	kind := msg.Kind()
	if path, ok := uc.resolver.Resolve(kind, msg.Media.Key, rules); ok {
		log.Info().Str("asset", filepath.Base(path)).Msg("Media replaced")
		return &domain.OutboundMedia{
			Kind:     kind,
			Path:     path,
			FileName: filepath.Base(path),
			Replaced: true,
		}, nil
	}

	media, err := uc.messenger.ReferenceMedia(ctx, msg)
	if err == nil {
		return media, nil
	}
	if !errors.Is(err, domain.ErrMediaUnavailable) {
		log.Warn().Err(err).Msg("Media reference failed, downloading")
	}

	media, err = uc.messenger.DownloadMedia(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	media.Downloaded = true
	return media, nil
}

func (uc *RelayUsecase) deliver(
	ctx context.Context,
	msg *domain.Message,
	dest, text string,
	media *domain.OutboundMedia,
	log zerolog.Logger,
) domain.DeliveryOutcome {
	out := domain.DeliveryOutcome{Destination: dest}
	log = log.With().Str("dest", dest).Logger()

	id, fallback, err := uc.send(ctx, dest, text, media, repo.TextMarkup, log)
	if err != nil && domain.IsPermissionError(err) {
		log.Warn().Err(err).Msg("Permission denied, trying to join destination")
		if joinErr := uc.messenger.JoinChat(ctx, dest); joinErr != nil {
			log.Warn().Err(joinErr).Msg("Join destination failed")
		}
		id, _, err = uc.send(ctx, dest, text, media, repo.TextPlain, log)
		fallback = true
	}
	if err != nil {
		log.Error().Err(err).Msg("Delivery failed")
		out.Err = err
		return out
	}

	out.MessageID = id
	out.Fallback = fallback

	if err := uc.mappings.Put(ctx, domain.MessageMapping{
		SourceChatID:         msg.ChatID,
		SourceMessageID:      msg.ID,
		DestinationChatID:    dest,
		DestinationMessageID: id,
		CreatedAt:            uc.now(),
	}); err != nil {
		log.Error().Err(err).Str("dest_message_id", id).Msg("Failed to save mapping")
		out.MappingErr = err
	}
	return out
}

// send posts one payload. Stickers that fail are re-sent as a generic attachment.
func (uc *RelayUsecase) send(
	ctx context.Context,
	dest, text string,
	media *domain.OutboundMedia,
	mode repo.TextMode,
	log zerolog.Logger,
) (string, bool, error) {
	if media == nil {
		id, err := uc.messenger.SendText(ctx, dest, text, mode)
		return id, false, err
	}

	if media.Kind != domain.MediaKindSticker {
		id, err := uc.messenger.SendMedia(ctx, dest, media, text)
		return id, false, err
	}

	id, err := uc.messenger.SendSticker(ctx, dest, media)
	if err == nil || domain.IsPermissionError(err) {
		return id, false, err
	}
	log.Warn().Err(err).Msg("Sticker send failed, resending as attachment")
	id, err = uc.messenger.SendMedia(ctx, dest, media.AsAttachment(), "")
	return id, true, err
}
