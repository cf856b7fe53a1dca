package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/DrXenon2/BuySell-sub000/internal/lock"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
	"github.com/DrXenon2/BuySell-sub000/internal/storage"
)

type WebhookOutcome string

const (
	OutcomeApplied        WebhookOutcome = "applied"
	OutcomeDuplicate      WebhookOutcome = "duplicate"
	OutcomeUnknownPayment WebhookOutcome = "unknown_payment"
	OutcomeUnchanged      WebhookOutcome = "unchanged"
	OutcomeIgnored        WebhookOutcome = "ignored"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

type WebhookService struct {
	store   Store
	sel     Selector
	locker  lock.Locker
	archive storage.Archive
	logger  *slog.Logger
}

func NewWebhookService(store Store, sel Selector) *WebhookService {
	return &WebhookService{store: store, sel: sel, locker: lock.NewMemory(), logger: slog.Default()}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *WebhookService) SetLocker(l lock.Locker) {
	s.locker = l
}

// SetArchive enables raw payload archiving; nil disables it.
func (s *WebhookService) SetArchive(a storage.Archive) {
	s.archive = a
}

// Handle verifies and applies one provider notification. Only a bad
// signature (401), an unknown provider (404) or a storage failure (500)
// is an error; stale, duplicate and unmatched deliveries are accepted so
// the provider stops retrying them.
func (s *WebhookService) Handle(ctx context.Context, provider string, header http.Header, body []byte) (WebhookOutcome, error) {
	kind, ok := providers.ParseKind(provider)
	if !ok {
		return "", apperr.NotFoundErr("Fournisseur inconnu.")
	}
	adapter, ok := s.sel.Adapter(kind)
	if !ok {
		return "", apperr.NotFoundErr("Fournisseur non configuré.")
	}

	ev, err := adapter.VerifyAndParseWebhook(header, body)
	if err != nil {
		if errors.Is(err, providers.ErrInvalidSignature) {
			s.logger.WarnContext(ctx, "webhook signature rejected", "provider", kind)
			return "", apperr.UnauthorizedErr("Signature invalide.").WithCause(err)
		}
		s.logger.WarnContext(ctx, "webhook payload ignored", "provider", kind, "err", err)
		return OutcomeIgnored, nil
	}

	log := s.logger.With("provider", kind, "event_id", ev.EventID, "payment_id", ev.PaymentID)

	s.archivePayload(ctx, kind, ev.EventID, body)

	stored, created, err := s.store.RecordWebhookEvent(ctx, &ProviderEvent{
		ID:             uuid.NewString(),
		Provider:       string(kind),
		EventID:        ev.EventID,
		PaymentID:      ev.PaymentID,
		ProviderStatus: ev.ProviderStatus,
		PayloadJSON:    payloadJSON(body),
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to persist provider event", "err", err)
		return "", apperr.Wrap(err)
	}
	if !created && stored.ProcessedAt != nil {
		log.InfoContext(ctx, "webhook event deduplicated")
		return OutcomeDuplicate, nil
	}

	outcome, applyErr := s.apply(ctx, kind, ev)
	if err := s.store.MarkWebhookEventProcessed(ctx, stored.ID, applyErr); err != nil {
		log.ErrorContext(ctx, "failed to mark provider event", "err", err)
		if applyErr == nil {
			applyErr = err
		}
	}
	if applyErr != nil {
		// 500 so the provider redelivers; the ledger row stays unprocessed
		log.ErrorContext(ctx, "webhook event apply failed", "err", applyErr)
		return "", apperr.Wrap(applyErr)
	}

	log.InfoContext(ctx, "webhook event processed", "outcome", outcome, "provider_status", ev.ProviderStatus)
	return outcome, nil
}

func (s *WebhookService) apply(ctx context.Context, kind providers.Kind, ev providers.WebhookEvent) (WebhookOutcome, error) {
	unlock, err := s.locker.Lock(ctx, ev.PaymentID)
	if err != nil {
		return "", err
	}
	defer unlock()

	p, err := s.store.GetPayment(ctx, ev.PaymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		s.logger.WarnContext(ctx, "webhook for unknown payment", "provider", kind, "payment_id", ev.PaymentID)
		return OutcomeUnknownPayment, nil
	}
	if err != nil {
		return "", err
	}

	status := CanonicalStatus(ev.ProviderStatus)
	if status == p.Status {
		return OutcomeUnchanged, nil
	}
	if !CanTransitionTo(p.Status, status) {
		s.logger.InfoContext(ctx, "webhook transition ignored", "payment_id", p.ID, "from", p.Status, "to", status)
		return OutcomeIgnored, nil
	}

	// order first: a failed mirror leaves the payment unchanged, so a redelivery retries both
	if IsTerminal(status) {
		if err := mirrorOrder(ctx, s.store, s.logger, p, status); err != nil {
			return "", err
		}
	}

	patch := PaymentPatch{Status: &status, ProcessorResponse: payloadJSON(ev.Raw)}
	if p.Reference() == "" && ev.ProviderReference != "" {
		patch.ProcessorReference = &ev.ProviderReference
	}
	switch status {
	case StatusFailed, StatusCancelled:
		msg := "provider status: " + ev.ProviderStatus
		patch.ErrorMessage = &msg
	case StatusSucceeded:
		patch.ClearError = true
	}
	if err := s.store.UpdatePayment(ctx, p.ID, patch); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// archivePayload is best effort: the ledger row is the record of truth.
func (s *WebhookService) archivePayload(ctx context.Context, kind providers.Kind, eventID string, body []byte) {
	if s.archive == nil {
		return
	}
	key := path.Join(string(kind), time.Now().UTC().Format("2006/01/02"), unsafeKeyChars.ReplaceAllString(eventID, "_")+".json")
	if _, err := s.archive.Put(ctx, bytes.NewReader(body), storage.PutInput{Key: key, ContentType: "application/json"}); err != nil {
		s.logger.WarnContext(ctx, "webhook archive failed", "provider", kind, "key", key, "err", err)
	}
}

// payloadJSON keeps valid JSON as-is and stores anything else as a JSON string.
func payloadJSON(b []byte) datatypes.JSON {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return datatypes.JSON(b)
	}
	quoted, _ := json.Marshal(string(b))
	return datatypes.JSON(quoted)
}
