package data

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// Repositories contains all repositories
type Repositories struct {
	Mapping   repo.MappingRepo
	Messenger repo.MessengerRepo
	Notifier  repo.Notifier
	Assets    repo.AssetRepo
}

// Options configures NewRepositories
type Options struct {
	DatabasePath string
	MediaDir     string
	NotifyChat   string
	StoreRetry   RetryPolicy
}

// NewRepositories creates all repositories. The mapping store runs its
// retention sweep before this returns.
func NewRepositories(ctx context.Context, api FeishuAPI, opts Options, log zerolog.Logger) (*Repositories, error) {
	if err := os.MkdirAll(opts.MediaDir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", opts.MediaDir).Msg("Failed to create media directory")
	}

	var storeOpts []MappingOption
	if opts.StoreRetry.MaxAttempts > 0 {
		storeOpts = append(storeOpts, WithRetryPolicy(opts.StoreRetry))
	}
	mapping, err := NewMappingRepo(ctx, opts.DatabasePath, log, storeOpts...)
	if err != nil {
		return nil, err
	}

	messenger := NewMessengerRepo(api, opts.NotifyChat, log)
	return &Repositories{
		Mapping:   mapping,
		Messenger: messenger,
		Notifier:  messenger,
		Assets:    NewAssetRepo(opts.MediaDir),
	}, nil
}

// Close releases repository resources
func (r *Repositories) Close() error {
	return r.Mapping.Close()
}
