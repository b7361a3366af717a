package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// ChatRole tells whether a chat is read from or written to
type ChatRole string

const (
	RoleSource      ChatRole = "source"
	RoleDestination ChatRole = "destination"
)

// AuditEntry is the access check for one configured chat
type AuditEntry struct {
	Role   ChatRole
	Access repo.ChatAccess
}

// AuditReport summarizes a permission audit
type AuditReport struct {
	Entries []AuditEntry
}

// Accessible counts chats the bot can reach
func (r *AuditReport) Accessible() int {
	n := 0
	for _, e := range r.Entries {
		if e.Access.Accessible {
			n++
		}
	}
	return n
}

// Problems returns the inaccessible chats
func (r *AuditReport) Problems() []AuditEntry {
	var out []AuditEntry
	for _, e := range r.Entries {
		if !e.Access.Accessible {
			out = append(out, e)
		}
	}
	return out
}

// PermissionAudit checks at startup that every configured chat is reachable
type PermissionAudit struct {
	messenger repo.MessengerRepo
	notifier  repo.Notifier
	log       zerolog.Logger
}

// NewPermissionAudit creates a new permission audit
func NewPermissionAudit(messenger repo.MessengerRepo, notifier repo.Notifier, log zerolog.Logger) *PermissionAudit {
	return &PermissionAudit{
		messenger: messenger,
		notifier:  notifier,
		log:       log.With().Str("component", "permissions").Logger(),
	}
}

// Run checks all chats, logs a summary and sends one aggregated warning
// when any chat is inaccessible.
func (a *PermissionAudit) Run(ctx context.Context, sources, destinations []string) *AuditReport {
	report := &AuditReport{}
	check := func(role ChatRole, chats []string) {
		for _, chatID := range chats {
			access, err := a.messenger.ChatAccess(ctx, chatID)
			if err != nil || access == nil {
				reason := "unknown"
				if err != nil {
					reason = err.Error()
				}
				access = &repo.ChatAccess{ChatID: chatID, Reason: reason}
			}
			report.Entries = append(report.Entries, AuditEntry{Role: role, Access: *access})
			a.log.Debug().
				Str("chat_id", chatID).
				Str("role", string(role)).
				Bool("accessible", access.Accessible).
				Msg("Chat checked")
		}
	}
	check(RoleSource, sources)
	check(RoleDestination, destinations)

	a.log.Info().
		Int("accessible", report.Accessible()).
		Int("total", len(report.Entries)).
		Msg("Permission audit completed")

	problems := report.Problems()
	if len(problems) == 0 {
		return report
	}
	for _, p := range problems {
		a.log.Warn().
			Str("chat_id", p.Access.ChatID).
			Str("role", string(p.Role)).
			Str("reason", p.Access.Reason).
			Msg("Chat not accessible")
	}
	if a.notifier != nil {
		if err := a.notifier.Notify(ctx, FormatAuditWarning(problems)); err != nil {
			a.log.Warn().Err(err).Msg("Failed to send permission warning")
		}
	}
	return report
}

// FormatAuditWarning renders the admin warning for inaccessible chats
func FormatAuditWarning(problems []AuditEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Permission warning: %d chat(s) are not accessible.\n", len(problems)))
	for _, p := range problems {
		name := p.Access.ChatID
		if p.Access.Name != "" {
			name = fmt.Sprintf("%s (%s)", p.Access.Name, p.Access.ChatID)
		}
		sb.WriteString(fmt.Sprintf("- %s %s: %s\n", p.Role, name, p.Access.Reason))
	}
	return strings.TrimRight(sb.String(), "\n")
}
