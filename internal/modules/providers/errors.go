package providers

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeTimeout                  = "TIMEOUT"
	CodeNetwork                  = "NETWORK_ERROR"
	CodeCircuitOpen              = "CIRCUIT_OPEN"
	CodeInvalidPhone             = "INVALID_PHONE_NUMBER"
	CodeInvalidAmount            = "INVALID_AMOUNT"
	CodePartialRefundUnsupported = "PARTIAL_REFUND_UNSUPPORTED"
	CodeUnknown                  = "UNKNOWN_ERROR"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// ProviderError is the only error type an adapter returns for a failed call.
// Message is safe to show to a customer.
type ProviderError struct {
	Provider       Kind
	Code           string
	Message        string
	HTTPStatusHint int
	Err            error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is a transport problem the caller may retry.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case CodeTimeout, CodeNetwork, CodeCircuitOpen:
		return true
	}
	return e.HTTPStatusHint == http.StatusServiceUnavailable
}

func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type errorInfo struct {
	Message string
	Hint    int
}

type errorMap map[string]errorInfo

// common to every adapter
var baseErrors = errorMap{
	CodeTimeout:                  {"Le service de paiement ne répond pas. Veuillez réessayer.", http.StatusServiceUnavailable},
	CodeNetwork:                  {"Impossible de joindre le service de paiement.", http.StatusServiceUnavailable},
	CodeCircuitOpen:              {"Le service de paiement est temporairement indisponible.", http.StatusServiceUnavailable},
	CodeInvalidPhone:             {"Numéro de téléphone invalide pour ce moyen de paiement.", http.StatusBadRequest},
	CodeInvalidAmount:            {"Montant invalide pour ce moyen de paiement.", http.StatusBadRequest},
	CodePartialRefundUnsupported: {"Ce moyen de paiement n'accepte que les remboursements complets.", http.StatusBadRequest},
}

var mtnErrors = errorMap{
	"PAYER_NOT_FOUND":               {"Le numéro MTN Mobile Money est introuvable.", http.StatusBadRequest},
	"PAYEE_NOT_FOUND":               {"Le compte marchand MTN est introuvable.", http.StatusBadRequest},
	"NOT_ENOUGH_FUNDS":              {"Solde MTN Mobile Money insuffisant.", http.StatusPaymentRequired},
	"PAYER_LIMIT_REACHED":           {"Plafond de transactions MTN atteint.", http.StatusPaymentRequired},
	"NOT_ALLOWED":                   {"Transaction refusée par MTN.", http.StatusPaymentRequired},
	"APPROVAL_REJECTED":             {"Paiement refusé par le client.", http.StatusPaymentRequired},
	"INVALID_CURRENCY":              {"Devise non prise en charge par MTN.", http.StatusBadRequest},
	"RESOURCE_ALREADY_EXIST":        {"Cette transaction existe déjà.", http.StatusConflict},
	"RESOURCE_NOT_FOUND":            {"Transaction MTN introuvable.", http.StatusNotFound},
	"SERVICE_UNAVAILABLE":           {"Le service MTN est momentanément indisponible.", http.StatusServiceUnavailable},
	"INTERNAL_PROCESSING_ERROR":     {"Erreur interne chez MTN.", http.StatusServiceUnavailable},
	"COULD_NOT_PERFORM_TRANSACTION": {"MTN n'a pas pu effectuer la transaction.", http.StatusServiceUnavailable},
}

var orangeErrors = errorMap{
	"INVALID_PHONE":        {"Numéro Orange Money invalide.", http.StatusBadRequest},
	"INSUFFICIENT_BALANCE": {"Solde Orange Money insuffisant.", http.StatusPaymentRequired},
	"TRANSACTION_REFUSED":  {"Transaction refusée par Orange Money.", http.StatusPaymentRequired},
	"TRANSACTION_EXPIRED":  {"La transaction Orange Money a expiré.", http.StatusPaymentRequired},
	"INVALID_MERCHANT":     {"Compte marchand Orange invalide.", http.StatusBadRequest},
	"DUPLICATE_ORDER":      {"Cette commande a déjà été soumise à Orange Money.", http.StatusConflict},
	"SERVICE_UNAVAILABLE":  {"Le service Orange Money est momentanément indisponible.", http.StatusServiceUnavailable},
	"INVALID_TOKEN":        {"Authentification Orange Money échouée.", http.StatusServiceUnavailable},
}

var waveErrors = errorMap{
	"insufficient-funds":         {"Solde Wave insuffisant.", http.StatusPaymentRequired},
	"blocked-account":            {"Le compte Wave est bloqué.", http.StatusPaymentRequired},
	"payer-mobile-mismatch":      {"Le numéro ne correspond pas au compte Wave.", http.StatusBadRequest},
	"invalid-currency":           {"Devise non prise en charge par Wave.", http.StatusBadRequest},
	"checkout-session-not-found": {"Session Wave introuvable.", http.StatusNotFound},
	"checkout-refund-failed":     {"Le remboursement Wave a échoué.", http.StatusPaymentRequired},
	"request-validation-error":   {"Requête Wave invalide.", http.StatusBadRequest},
	"unauthorized":               {"Authentification Wave échouée.", http.StatusServiceUnavailable},
	"service-unavailable":        {"Le service Wave est momentanément indisponible.", http.StatusServiceUnavailable},
	"internal-server-error":      {"Erreur interne chez Wave.", http.StatusServiceUnavailable},
}

var stripeErrors = errorMap{
	"card_declined":             {"Votre carte a été refusée.", http.StatusPaymentRequired},
	"insufficient_funds":        {"Fonds insuffisants sur la carte.", http.StatusPaymentRequired},
	"expired_card":              {"Votre carte a expiré.", http.StatusPaymentRequired},
	"incorrect_cvc":             {"Le code de sécurité de la carte est incorrect.", http.StatusPaymentRequired},
	"processing_error":          {"Erreur lors du traitement de la carte.", http.StatusPaymentRequired},
	"authentication_required":   {"Authentification de la carte requise.", http.StatusPaymentRequired},
	"resource_missing":          {"Paiement introuvable chez Stripe.", http.StatusNotFound},
	"amount_too_small":          {"Montant trop faible pour un paiement par carte.", http.StatusBadRequest},
	"parameter_invalid_integer": {"Montant invalide.", http.StatusBadRequest},
	"charge_already_refunded":   {"Ce paiement a déjà été remboursé.", http.StatusConflict},
	"idempotency_key_in_use":    {"Une requête identique est déjà en cours.", http.StatusConflict},
	"rate_limit":                {"Trop de requêtes vers le service de paiement.", http.StatusServiceUnavailable},
	"api_connection_error":      {"Impossible de joindre Stripe.", http.StatusServiceUnavailable},
}

func (m errorMap) lookup(code string) (errorInfo, bool) {
	if info, ok := m[code]; ok {
		return info, true
	}
	info, ok := baseErrors[code]
	return info, ok
}

// newError builds a ProviderError from the provider's error map. Unmapped
// codes keep the provider's code but get a generic message and hint 500.
func newError(kind Kind, m errorMap, code string, cause error) *ProviderError {
	info, ok := m.lookup(code)
	if !ok {
		info = errorInfo{"Le paiement n'a pas pu être traité.", http.StatusInternalServerError}
		if code == "" {
			code = CodeUnknown
		}
	}
	return &ProviderError{
		Provider:       kind,
		Code:           code,
		Message:        info.Message,
		HTTPStatusHint: info.Hint,
		Err:            cause,
	}
}
