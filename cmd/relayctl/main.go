package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/devricklin/feishu-relay/internal/biz/repo"
	"github.com/devricklin/feishu-relay/internal/conf"
	"github.com/devricklin/feishu-relay/internal/data"
	"github.com/devricklin/feishu-relay/internal/infra/feishu"
	"github.com/devricklin/feishu-relay/internal/service"
)

const usage = `Usage: relayctl [--config path] <command> [args]

Commands:
  lookup <chat_id> <message_id>   print the stored destination copies of a message
  maintain                        reap expired mappings and compact the store
  notify <text>                   send a text to the admin chat
  audit                           check access to every configured chat
`

func main() {
	flags := pflag.NewFlagSet("relayctl", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to config.yaml")
	verbose := flags.BoolP("verbose", "v", false, "debug logging")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := conf.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch args[0] {
	case "lookup":
		err = lookup(ctx, cfg, args[1:], logger)
	case "maintain":
		err = maintain(ctx, cfg, logger)
	case "notify":
		err = notify(ctx, cfg, args[1:], logger)
	case "audit":
		err = audit(ctx, cfg, logger)
	default:
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore(cfg *conf.Config, logger zerolog.Logger) (repo.MappingRepo, error) {
	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("store %s: %w", cfg.DatabasePath, err)
	}
	return data.OpenMappingRepo(cfg.DatabasePath, logger)
}

func lookup(ctx context.Context, cfg *conf.Config, args []string, logger zerolog.Logger) error {
	if len(args) != 2 {
		return fmt.Errorf("lookup needs <chat_id> <message_id>")
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	mappings, err := store.Lookup(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		fmt.Println("No mappings found")
		return nil
	}
	for _, m := range mappings {
		fmt.Printf("%s\t%s\t%s\n", m.DestinationChatID, m.DestinationMessageID, m.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func maintain(ctx context.Context, cfg *conf.Config, logger zerolog.Logger) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Maintenance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Mappings: %d -> %d (%d removed)\n", report.Before, report.After, report.Removed())
	return nil
}

func newMessenger(cfg *conf.Config, logger zerolog.Logger) (*data.FeishuMessenger, error) {
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		return nil, &conf.ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	return data.NewMessengerRepo(client, cfg.ChatID, logger), nil
}

func notify(ctx context.Context, cfg *conf.Config, args []string, logger zerolog.Logger) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("notify needs <text>")
	}
	if cfg.ChatID == "" {
		return &conf.ConfigError{Field: "chat_id", Message: "required for notify"}
	}
	messenger, err := newMessenger(cfg, logger)
	if err != nil {
		return err
	}
	if err := messenger.Notify(ctx, text); err != nil {
		return err
	}
	fmt.Println("Message sent successfully!")
	return nil
}

func audit(ctx context.Context, cfg *conf.Config, logger zerolog.Logger) error {
	messenger, err := newMessenger(cfg, logger)
	if err != nil {
		return err
	}
	// Report only; the admin chat is not notified from the CLI
	report := service.NewPermissionAudit(messenger, nil, logger).Run(ctx, cfg.SourceChats, cfg.DestinationChats)
	for _, e := range report.Entries {
		state := "ok"
		if !e.Access.Accessible {
			state = e.Access.Reason
		}
		fmt.Printf("%-11s %s\t%s\t%s\n", e.Role, e.Access.ChatID, e.Access.Name, state)
	}
	fmt.Printf("Accessible: %d/%d\n", report.Accessible(), len(report.Entries))
	return nil
}
