package payments

import (
	"errors"
	"net/http"

	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
)

// Selector resolves adapters; *providers.Registry implements it.
type Selector interface {
	Select(method providers.Method, currency, country string) (providers.Adapter, error)
	Adapter(kind providers.Kind) (providers.Adapter, bool)
}

const (
	msgMethodUnsupported = "Mode de paiement non supporté."
	msgMethodUnavailable = "Ce mode de paiement n'est pas disponible pour le moment."
)

// selectionError turns a selector failure into a 400.
func selectionError(err error) error {
	if errors.Is(err, providers.ErrUnsupportedMethod) {
		return apperr.UnavailableErr(msgMethodUnsupported, "UNSUPPORTED_METHOD", http.StatusBadRequest).WithCause(err)
	}
	if errors.Is(err, providers.ErrMethodUnavailable) {
		return apperr.UnavailableErr(msgMethodUnavailable, "METHOD_UNAVAILABLE", http.StatusBadRequest).WithCause(err)
	}
	return apperr.Wrap(err)
}

// FromProviderError converts an adapter failure into the error the caller
// sees. The provider's own message is already the public one.
func FromProviderError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	pe, ok := providers.AsProviderError(err)
	if !ok {
		return apperr.Wrap(err)
	}

	switch {
	case pe.HTTPStatusHint == http.StatusPaymentRequired:
		return apperr.DeclinedErr(pe.Message, pe.Code).WithCause(err)
	case pe.HTTPStatusHint == http.StatusUnauthorized:
		return apperr.UnauthorizedErr(pe.Message).WithCause(err)
	case pe.Retryable(),
		pe.HTTPStatusHint == http.StatusServiceUnavailable,
		pe.HTTPStatusHint == http.StatusGatewayTimeout:
		return apperr.UnavailableErr(pe.Message, pe.Code, http.StatusServiceUnavailable).WithCause(err)
	case pe.HTTPStatusHint >= 400 && pe.HTTPStatusHint < 500:
		return apperr.UnavailableErr(pe.Message, pe.Code, http.StatusBadRequest).WithCause(err)
	}
	return apperr.Wrap(err)
}

func isTimeout(err error) bool {
	pe, ok := providers.AsProviderError(err)
	return ok && pe.Code == providers.CodeTimeout
}
