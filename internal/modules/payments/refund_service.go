package payments

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/DrXenon2/BuySell-sub000/internal/lock"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/validation"
)

const (
	msgNotRefundable  = "Ce paiement ne peut pas être remboursé."
	msgRefundDeclined = "Le remboursement a été refusé par le fournisseur."
)

type RefundService struct {
	store  Store
	sel    Selector
	locker lock.Locker
	logger *slog.Logger
}

func NewRefundService(store Store, sel Selector) *RefundService {
	return &RefundService{store: store, sel: sel, locker: lock.NewMemory(), logger: slog.Default()}
}

func (s *RefundService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetLocker must be given the same Locker as the payment Service so refunds
// and status updates on one payment never interleave.
func (s *RefundService) SetLocker(l lock.Locker) {
	s.locker = l
}

type RefundInput struct {
	PaymentID string `json:"-" validate:"required"`
	Amount    int64  `json:"amount" validate:"gte=0"` // 0 refunds whatever remains
	Reason    string `json:"reason" validate:"max=255"`
}

type RefundResult struct {
	RefundID      string
	PaymentID     string
	Status        string
	Amount        int64
	RefundStatus  string
	TotalRefunded int64
}

// ProcessRefund returns money on a settled payment, in full or in part.
func (s *RefundService) ProcessRefund(ctx context.Context, in RefundInput) (RefundResult, error) {
	if err := validation.Struct(in); err != nil {
		return RefundResult{}, err
	}

	unlock, err := s.locker.Lock(ctx, in.PaymentID)
	if err != nil {
		return RefundResult{}, apperr.Wrap(err)
	}
	defer unlock()

	p, err := getPayment(ctx, s.store, in.PaymentID)
	if err != nil {
		return RefundResult{}, err
	}

	if p.Status != StatusSucceeded || p.RefundStatus == RefundFullyRefunded || p.TotalRefunded >= p.Amount {
		return RefundResult{}, apperr.InvalidErr(msgNotRefundable, nil)
	}
	remaining := p.Amount - p.TotalRefunded
	amount := in.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount > remaining {
		return RefundResult{}, apperr.InvalidErr(msgNotRefundable, map[string]string{
			"amount": "Doit être inférieur ou égal à " + strconv.FormatInt(remaining, 10) + ".",
		})
	}

	ref := Refund{
		ID:        uuid.NewString(),
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    amount,
		Currency:  p.Currency,
		Status:    RefundStatusPending,
	}
	if in.Reason != "" {
		ref.Reason = ptr(in.Reason)
	}
	if err := s.store.CreateRefund(ctx, &ref); err != nil {
		return RefundResult{}, apperr.Wrap(err)
	}

	log := s.logger.With("payment_id", p.ID, "refund_id", ref.ID, "order_id", p.OrderID, "provider", p.Provider)

	// cash has no programmatic reversal; staff hands the money back
	if p.IsCash() {
		st := RefundStatusManualPending
		if err := s.store.UpdateRefund(ctx, ref.ID, RefundPatch{Status: &st}); err != nil {
			return RefundResult{}, apperr.Wrap(err)
		}
		log.InfoContext(ctx, "cash refund awaiting manual handling", "amount", amount)
		return RefundResult{
			RefundID:      ref.ID,
			PaymentID:     p.ID,
			Status:        st,
			Amount:        amount,
			RefundStatus:  p.RefundStatus,
			TotalRefunded: p.TotalRefunded,
		}, nil
	}

	adapter, ok := s.sel.Adapter(providers.Kind(p.Provider))
	if !ok {
		s.failRefund(ctx, ref.ID, "provider not configured: "+p.Provider)
		return RefundResult{}, apperr.UnavailableErr(msgMethodUnavailable, "METHOD_UNAVAILABLE", http.StatusBadRequest)
	}

	res, perr := adapter.Refund(ctx, providers.RefundRequest{
		RefundID:          ref.ID,
		ProviderReference: p.Reference(),
		Amount:            amount,
		OriginalAmount:    p.Amount,
		Currency:          p.Currency,
		Reason:            in.Reason,
	})
	if perr != nil {
		s.failRefund(ctx, ref.ID, perr.Error())
		log.ErrorContext(ctx, "provider refund failed", "err", perr)
		return RefundResult{}, FromProviderError(perr)
	}

	status := CanonicalStatus(res.ProviderStatus)
	if status == StatusFailed || status == StatusCancelled {
		s.failRefund(ctx, ref.ID, "provider status: "+res.ProviderStatus)
		log.WarnContext(ctx, "provider declined refund", "provider_status", res.ProviderStatus, "raw", string(res.RawResponse))
		return RefundResult{}, apperr.DeclinedErr(msgRefundDeclined, "REFUND_DECLINED")
	}

	refundStatus := RefundStatusPending
	patch := RefundPatch{Status: &refundStatus, ProcessorResponse: datatypes.JSON(res.RawResponse)}
	if status == StatusSucceeded {
		refundStatus = RefundStatusSucceeded
		patch.ProcessedAt = ptr(time.Now())
	}
	if res.ProviderReference != "" {
		patch.ProcessorReference = &res.ProviderReference
	}
	if err := s.store.UpdateRefund(ctx, ref.ID, patch); err != nil {
		return RefundResult{}, apperr.Wrap(err)
	}

	// a refund still pending at the provider reserves its amount so the
	// remaining-amount gate cannot be raced; no refund status feed exists to
	// release it, a later provider failure is corrected by staff
	total := p.TotalRefunded + amount
	state := RefundPartiallyRefunded
	if total == p.Amount {
		state = RefundFullyRefunded
	}
	if err := s.store.UpdatePayment(ctx, p.ID, PaymentPatch{TotalRefunded: &total, RefundStatus: &state}); err != nil {
		log.ErrorContext(ctx, "persist refund totals failed", "total_refunded", total, "err", err)
		return RefundResult{}, apperr.Wrap(err)
	}

	if state == RefundFullyRefunded {
		if err := s.store.UpdateOrderPaymentStatus(ctx, p.OrderID, StatusRefunded); err != nil {
			log.ErrorContext(ctx, "order mirror failed", "status", StatusRefunded, "err", err)
		}
	}

	log.InfoContext(ctx, "refund processed", "amount", amount, "status", refundStatus, "refund_status", state)

	return RefundResult{
		RefundID:      ref.ID,
		PaymentID:     p.ID,
		Status:        refundStatus,
		Amount:        amount,
		RefundStatus:  state,
		TotalRefunded: total,
	}, nil
}

func (s *RefundService) failRefund(ctx context.Context, id, msg string) {
	ctx = context.WithoutCancel(ctx)
	st := RefundStatusFailed
	if err := s.store.UpdateRefund(ctx, id, RefundPatch{Status: &st, ErrorMessage: &msg}); err != nil {
		s.logger.ErrorContext(ctx, "persist refund failure failed", "refund_id", id, "err", err)
	}
}
