package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/DrXenon2/BuySell-sub000/internal/lock"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/orders"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/validation"
)

const (
	msgPaymentNotFound = "Paiement introuvable."
	msgFieldRequired   = "Ce champ est obligatoire."
	msgProviderTimeout = "Le fournisseur ne répond pas. Le paiement sera vérifié ultérieurement."
	msgManualOnlyCash  = "Seuls les paiements en espèces en attente peuvent être mis à jour manuellement."
	msgBadTransition   = "Transition de statut non autorisée."
)

var statusMessages = map[string]string{
	StatusPending:              "Paiement en attente de confirmation.",
	StatusProcessing:           "Paiement en cours de traitement.",
	StatusRequiresAction:       "Veuillez finaliser le paiement.",
	StatusRequiresConfirmation: "Veuillez confirmer le paiement.",
	StatusSucceeded:            "Paiement effectué avec succès.",
	StatusFailed:               "Le paiement a échoué.",
	StatusCancelled:            "Le paiement a été annulé.",
	StatusPendingCash:          "Paiement à la livraison enregistré.",
}

type Service struct {
	store        Store
	sel          Selector
	locker       lock.Locker
	logger       *slog.Logger
	callbackBase string
}

func NewService(store Store, sel Selector) *Service {
	return &Service{store: store, sel: sel, locker: lock.NewMemory(), logger: slog.Default()}
}

func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *Service) SetLocker(l lock.Locker) {
	s.locker = l
}

// SetCallbackBaseURL sets the public URL providers post webhooks to.
func (s *Service) SetCallbackBaseURL(base string) {
	s.callbackBase = strings.TrimRight(base, "/")
}

type Customer struct {
	Phone     string `json:"phone"`
	CardToken string `json:"cardToken"`
	Email     string `json:"email" validate:"omitempty,email"`
	Name      string `json:"name" validate:"max=128"`
}

type PaymentRequest struct {
	OrderID       string            `json:"orderId" validate:"required,max=36"`
	Amount        int64             `json:"amount" validate:"gte=100"`
	Currency      string            `json:"currency" validate:"len=3"`
	PaymentMethod string            `json:"paymentMethod" validate:"required,max=32"`
	Country       string            `json:"country" validate:"omitempty,len=2"`
	Customer      Customer          `json:"customerInfo"`
	ReturnURL     string            `json:"returnUrl" validate:"omitempty,url"`
	Metadata      map[string]string `json:"metadata"`
}

type PaymentResult struct {
	Success              bool
	PaymentID            string
	OrderID              string
	Status               string
	ProcessorReference   string
	NextAction           *providers.NextAction
	VerificationRequired bool
	Message              string
}

func (r *PaymentRequest) normalize() {
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = "XOF"
	}
	r.PaymentMethod = strings.ToLower(strings.TrimSpace(r.PaymentMethod))
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	r.Customer.Phone = strings.TrimSpace(r.Customer.Phone)
	r.Customer.CardToken = strings.TrimSpace(r.Customer.CardToken)
}

func (r PaymentRequest) validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	m := providers.Method(r.PaymentMethod)
	switch {
	case m.IsMobileMoney() && r.Customer.Phone == "":
		return apperr.InvalidErr("Requête invalide.", map[string]string{"customerInfo.phone": msgFieldRequired})
	case m.IsCard() && r.Customer.CardToken == "":
		return apperr.InvalidErr("Requête invalide.", map[string]string{"customerInfo.cardToken": msgFieldRequired})
	}
	return nil
}

func (r PaymentRequest) recipient() string {
	if providers.Method(r.PaymentMethod).IsCard() {
		return r.Customer.CardToken
	}
	return r.Customer.Phone
}

// ProcessPayment records the payment, charges it through the selected
// provider and mirrors the outcome onto the order. The record is created
// before any provider call and never stays initiated once this returns.
func (s *Service) ProcessPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return PaymentResult{}, err
	}

	method := providers.Method(req.PaymentMethod)
	adapter, selErr := s.sel.Select(method, req.Currency, req.Country)

	provider := string(method)
	if adapter != nil {
		provider = string(adapter.Kind())
	}

	meta, _ := json.Marshal(req.Metadata)
	p := Payment{
		ID:            uuid.NewString(),
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Provider:      provider,
		Status:        StatusInitiated,
		RefundStatus:  RefundNone,
		Metadata:      datatypes.JSON(meta),
	}
	if err := s.store.CreatePayment(ctx, &p); err != nil {
		return PaymentResult{}, apperr.Wrap(err)
	}

	log := s.logger.With("payment_id", p.ID, "order_id", p.OrderID, "provider", provider)

	if selErr != nil {
		s.fail(ctx, p.ID, StatusFailed, selErr.Error())
		log.WarnContext(ctx, "payment method not selectable", "method", method, "err", selErr)
		return PaymentResult{}, selectionError(selErr)
	}

	if adapter == nil {
		return s.processCash(ctx, p)
	}

	payReq := providers.PayRequest{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Recipient:   req.recipient(),
		CallbackURL: s.callbackURL(adapter.Kind()),
		ReturnURL:   req.ReturnURL,
		Metadata:    req.Metadata,
		Country:     req.Country,
	}
	if ra, ok := adapter.(providers.ReferenceAssigner); ok {
		payReq.ReferenceID = ra.NewReferenceID()
	}

	res, perr := adapter.Pay(ctx, payReq)
	if perr != nil {
		if isTimeout(perr) {
			// outcome unknown: keep whatever reference a status poll can use
			patch := PaymentPatch{Status: ptr(StatusPending), ErrorMessage: ptr(msgProviderTimeout)}
			if payReq.ReferenceID != "" {
				patch.ProcessorReference = &payReq.ReferenceID
			}
			s.persist(ctx, p.ID, patch)
			log.WarnContext(ctx, "provider timed out", "err", perr, "reference", payReq.ReferenceID)
		} else {
			s.fail(ctx, p.ID, StatusFailed, perr.Error())
			log.ErrorContext(ctx, "provider payment failed", "err", perr)
		}
		return PaymentResult{}, FromProviderError(perr)
	}

	status := CanonicalStatus(res.ProviderStatus)
	patch := PaymentPatch{
		Status:            &status,
		ProcessorResponse: datatypes.JSON(res.RawResponse),
	}
	if res.ProviderReference != "" {
		patch.ProcessorReference = &res.ProviderReference
	}
	if status == StatusFailed {
		msg := firstNonEmpty(res.Message, statusMessages[StatusFailed])
		patch.ErrorMessage = &msg
	}
	if err := s.store.UpdatePayment(ctx, p.ID, patch); err != nil {
		log.ErrorContext(ctx, "persist provider result failed", "err", err, "provider_status", res.ProviderStatus, "raw", string(res.RawResponse))
		return PaymentResult{}, apperr.Wrap(err)
	}

	// the charge went through; a mirror failure must not make the caller retry it
	if err := s.store.UpdateOrderPaymentStatus(ctx, p.OrderID, status); err != nil {
		log.ErrorContext(ctx, "order mirror failed", "status", status, "err", err)
	}

	log.InfoContext(ctx, "payment processed", "status", status, "provider_status", res.ProviderStatus)

	return PaymentResult{
		Success:              status != StatusFailed && status != StatusCancelled,
		PaymentID:            p.ID,
		OrderID:              p.OrderID,
		Status:               status,
		ProcessorReference:   res.ProviderReference,
		NextAction:           res.NextAction,
		VerificationRequired: res.VerificationRequired,
		Message:              firstNonEmpty(res.Message, statusMessages[status]),
	}, nil
}

func (s *Service) processCash(ctx context.Context, p Payment) (PaymentResult, error) {
	status := StatusPendingCash
	if err := s.store.UpdatePayment(ctx, p.ID, PaymentPatch{Status: &status}); err != nil {
		return PaymentResult{}, apperr.Wrap(err)
	}
	if err := s.store.UpdateOrderPaymentStatus(ctx, p.OrderID, status); err != nil {
		s.logger.ErrorContext(ctx, "order mirror failed", "payment_id", p.ID, "order_id", p.OrderID, "status", status, "err", err)
	}
	s.logger.InfoContext(ctx, "cash payment recorded", "payment_id", p.ID, "order_id", p.OrderID)

	return PaymentResult{
		Success:   true,
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Status:    status,
		Message:   statusMessages[status],
	}, nil
}

func (s *Service) fail(ctx context.Context, id, status, msg string) {
	s.persist(ctx, id, PaymentPatch{Status: &status, ErrorMessage: &msg})
}

// persist writes an outcome even when the request context is already gone.
func (s *Service) persist(ctx context.Context, id string, patch PaymentPatch) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.UpdatePayment(ctx, id, patch); err != nil {
		s.logger.ErrorContext(ctx, "persist payment failure failed", "payment_id", id, "status", *patch.Status, "err", err)
	}
}

func (s *Service) callbackURL(kind providers.Kind) string {
	if s.callbackBase == "" {
		return ""
	}
	return s.callbackBase + "/webhooks/payments/" + string(kind)
}

// CheckPaymentStatus re-queries the provider for a payment that has not
// settled yet and persists any forward move.
func (s *Service) CheckPaymentStatus(ctx context.Context, paymentID string) (Payment, error) {
	unlock, err := s.locker.Lock(ctx, paymentID)
	if err != nil {
		return Payment{}, apperr.Wrap(err)
	}
	defer unlock()

	p, err := getPayment(ctx, s.store, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if IsTerminal(p.Status) || p.IsCash() || p.Reference() == "" {
		return p, nil
	}

	adapter, ok := s.sel.Adapter(providers.Kind(p.Provider))
	if !ok {
		s.logger.WarnContext(ctx, "no adapter for stored provider", "payment_id", p.ID, "provider", p.Provider)
		return p, nil
	}

	res, err := adapter.CheckStatus(ctx, p.Reference())
	if err != nil {
		s.logger.ErrorContext(ctx, "provider status check failed", "payment_id", p.ID, "provider", p.Provider, "err", err)
		return Payment{}, FromProviderError(err)
	}

	status := CanonicalStatus(res.ProviderStatus)
	if status == p.Status {
		return p, nil
	}
	if !CanTransitionTo(p.Status, status) {
		s.logger.WarnContext(ctx, "status regression ignored", "payment_id", p.ID, "from", p.Status, "to", status)
		return p, nil
	}

	// order first: a failed mirror leaves the payment unchanged, so the next poll retries both
	if IsTerminal(status) {
		if err := mirrorOrder(ctx, s.store, s.logger, p, status); err != nil {
			return Payment{}, apperr.Wrap(err)
		}
	}

	patch := PaymentPatch{Status: &status, ProcessorResponse: datatypes.JSON(res.RawResponse)}
	switch status {
	case StatusFailed:
		patch.ErrorMessage = ptr(statusMessages[StatusFailed])
	case StatusSucceeded:
		patch.ClearError = true
	}
	if err := s.store.UpdatePayment(ctx, p.ID, patch); err != nil {
		return Payment{}, apperr.Wrap(err)
	}
	patch.apply(&p)

	s.logger.InfoContext(ctx, "payment status updated", "payment_id", p.ID, "order_id", p.OrderID, "status", status, "provider_status", res.ProviderStatus)
	return p, nil
}

// UpdateStatusManually settles a cash payment once staff has collected (or
// given up on) the money.
func (s *Service) UpdateStatusManually(ctx context.Context, paymentID, status, note string) (Payment, error) {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
	default:
		return Payment{}, apperr.InvalidErr(msgBadTransition, map[string]string{
			"status": "Doit être l'une des valeurs : succeeded failed cancelled.",
		})
	}

	unlock, err := s.locker.Lock(ctx, paymentID)
	if err != nil {
		return Payment{}, apperr.Wrap(err)
	}
	defer unlock()

	p, err := getPayment(ctx, s.store, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.Status != StatusPendingCash {
		return Payment{}, apperr.ConflictErr(msgManualOnlyCash)
	}
	if !CanTransitionTo(p.Status, status) {
		return Payment{}, apperr.ConflictErr(msgBadTransition)
	}

	if err := mirrorOrder(ctx, s.store, s.logger, p, status); err != nil {
		return Payment{}, apperr.Wrap(err)
	}

	patch := PaymentPatch{Status: &status, ClearError: true}
	if status != StatusSucceeded && note != "" {
		patch.ErrorMessage = &note
	}
	if err := s.store.UpdatePayment(ctx, p.ID, patch); err != nil {
		return Payment{}, apperr.Wrap(err)
	}
	patch.apply(&p)

	s.logger.InfoContext(ctx, "payment settled manually", "payment_id", p.ID, "order_id", p.OrderID, "status", status, "note", note)
	return p, nil
}

// mirrorOrder copies a settled status onto the payment's order. A missing
// order is logged and skipped: the provider outcome is recorded regardless.
func mirrorOrder(ctx context.Context, store Store, logger *slog.Logger, p Payment, status string) error {
	err := store.UpdateOrderPaymentStatus(ctx, p.OrderID, status)
	if errors.Is(err, orders.ErrOrderNotFound) {
		logger.WarnContext(ctx, "order missing, status not mirrored", "payment_id", p.ID, "order_id", p.OrderID, "status", status)
		return nil
	}
	return err
}

func getPayment(ctx context.Context, store Store, id string) (Payment, error) {
	p, err := store.GetPayment(ctx, id)
	if errors.Is(err, ErrPaymentNotFound) {
		return Payment{}, apperr.NotFoundErr(msgPaymentNotFound).WithCause(err)
	}
	if err != nil {
		return Payment{}, apperr.Wrap(err)
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
