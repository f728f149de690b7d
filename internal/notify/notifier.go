// Package notify forwards operation notices to operator chat channels
// (Telegram, Discord). Senders are independent: one failing does not stop
// delivery to the others.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// Sender delivers one message to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Filter selects which notices are forwarded.
type Filter struct {
	// Operations lists the operation names to forward; empty forwards all.
	Operations []string
	// ErrorsOnly drops success notices.
	ErrorsOnly bool
}

// Notifier fans notices out to its senders.
type Notifier struct {
	senders    []Sender
	ops        map[string]bool
	errorsOnly bool
	logger     *slog.Logger
}

func NewNotifier(senders []Sender, f Filter, logger *slog.Logger) *Notifier {
	ops := make(map[string]bool, len(f.Operations))
	for _, op := range f.Operations {
		if op = strings.TrimSpace(op); op != "" {
			ops[op] = true
		}
	}
	return &Notifier{
		senders:    senders,
		ops:        ops,
		errorsOnly: f.ErrorsOnly,
		logger:     logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether n passes the filter.
func (nt *Notifier) Wants(n domain.Notice) bool {
	if nt.errorsOnly && n.Level != domain.NoticeError {
		return false
	}
	return len(nt.ops) == 0 || nt.ops[n.Operation]
}

// NotifyNotice forwards n to every sender if it passes the filter.
func (nt *Notifier) NotifyNotice(ctx context.Context, n domain.Notice) error {
	if !nt.Wants(n) {
		return nil
	}
	title, body := Format(n)
	return nt.dispatch(ctx, title, body)
}

// Format renders a notice as a title and message body.
func Format(n domain.Notice) (string, string) {
	title := strings.ReplaceAll(n.Operation, "_", " ")
	if n.Level == domain.NoticeError {
		title += " failed"
	}
	var b strings.Builder
	b.WriteString(n.Message)
	if n.Auction != "" {
		b.WriteString("\nauction: " + n.Auction)
	}
	if n.TxHash != "" {
		b.WriteString("\ntx: " + n.TxHash)
	}
	return title, b.String()
}

func (nt *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range nt.senders {
		if err := s.Send(ctx, title, message); err != nil {
			nt.logger.WarnContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
