package providers

import (
	"errors"
	"slices"
	"strings"
)

// Method is what the storefront asks for; several methods can share one
// adapter (visa and mastercard both go through the card adapter).
type Method string

const (
	MethodMTN        Method = "mtn_money"
	MethodOrange     Method = "orange_money"
	MethodWave       Method = "wave"
	MethodStripe     Method = "stripe"
	MethodVisa       Method = "visa"
	MethodMastercard Method = "mastercard"
	MethodCash       Method = "cash"
)

func (m Method) IsMobileMoney() bool {
	return m == MethodMTN || m == MethodOrange || m == MethodWave
}

func (m Method) IsCard() bool {
	return m == MethodStripe || m == MethodVisa || m == MethodMastercard
}

var (
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrMethodUnavailable = errors.New("payment method not available")
)

// Adapters lists the configured integrations; nil means not configured.
type Adapters struct {
	MTN    Adapter
	Orange Adapter
	Wave   Adapter
	Card   Adapter
}

type Registry struct {
	adapters Adapters
}

func NewRegistry(a Adapters) *Registry {
	return &Registry{adapters: a}
}

// Select resolves the adapter for a method. Cash has no adapter and yields
// (nil, nil). Country and currency, when given, must be allowed for the
// method by the eligibility table.
func (r *Registry) Select(method Method, currency, country string) (Adapter, error) {
	var a Adapter
	switch method {
	case MethodMTN:
		a = r.adapters.MTN
	case MethodOrange:
		a = r.adapters.Orange
	case MethodWave:
		a = r.adapters.Wave
	case MethodStripe, MethodVisa, MethodMastercard:
		a = r.adapters.Card
	case MethodCash:
		return nil, nil
	default:
		return nil, ErrUnsupportedMethod
	}
	if a == nil {
		return nil, ErrMethodUnavailable
	}
	if rule, ok := ruleFor(method); ok && !rule.allows(country, currency) {
		return nil, ErrMethodUnavailable
	}
	return a, nil
}

// Adapter returns the adapter for a provider kind, used to route webhooks.
func (r *Registry) Adapter(kind Kind) (Adapter, bool) {
	var a Adapter
	switch kind {
	case KindMTN:
		a = r.adapters.MTN
	case KindOrange:
		a = r.adapters.Orange
	case KindWave:
		a = r.adapters.Wave
	case KindCard:
		a = r.adapters.Card
	}
	return a, a != nil
}

func (r *Registry) configured(m Method) bool {
	if m == MethodCash {
		return true
	}
	a, err := r.Select(m, "", "")
	return err == nil && a != nil
}

type AvailableMethod struct {
	Method    Method `json:"method"`
	Label     string `json:"label"`
	MinAmount int64  `json:"minAmount"`
	MaxAmount int64  `json:"maxAmount,omitempty"`
}

// ListAvailableMethods filters the static eligibility table. Empty country
// or currency and a zero amount are not filtered on.
func (r *Registry) ListAvailableMethods(country string, amount int64, currency string) []AvailableMethod {
	out := make([]AvailableMethod, 0, len(methodRules))
	for _, rule := range methodRules {
		if !rule.allows(country, currency) {
			continue
		}
		if amount > 0 && (amount < rule.Min || (rule.Max > 0 && amount > rule.Max)) {
			continue
		}
		if !r.configured(rule.Method) {
			continue
		}
		out = append(out, AvailableMethod{
			Method:    rule.Method,
			Label:     rule.Label,
			MinAmount: rule.Min,
			MaxAmount: rule.Max,
		})
	}
	return out
}

// DefaultMethod is the method pre-selected for customers of a country.
func DefaultMethod(country string) Method {
	switch strings.ToUpper(country) {
	case "CI", "ML", "BF":
		return MethodOrange
	case "SN":
		return MethodWave
	case "CM":
		return MethodMTN
	default:
		return MethodStripe
	}
}

type methodRule struct {
	Method     Method
	Label      string
	Countries  []string // empty: any country
	Currencies []string // empty: any currency
	Min        int64    // minor units
	Max        int64    // 0: no upper bound
}

var uemoa = []string{"CI", "SN", "ML", "BF"}

var methodRules = []methodRule{
	{MethodOrange, "Orange Money", []string{"CI", "SN", "CM", "ML", "BF"}, []string{"XOF", "XAF"}, 100, 1_500_000},
	{MethodMTN, "MTN Mobile Money", []string{"CI", "CM"}, []string{"XOF", "XAF"}, 100, 2_000_000},
	{MethodWave, "Wave", []string{"CI", "SN"}, []string{"XOF"}, 100, 5_000_000},
	{MethodStripe, "Carte bancaire", nil, []string{"XOF", "XAF", "EUR", "USD"}, 100, 0},
	{MethodVisa, "Visa", nil, []string{"XOF", "XAF", "EUR", "USD"}, 100, 0},
	{MethodMastercard, "Mastercard", nil, []string{"XOF", "XAF", "EUR", "USD"}, 100, 0},
	{MethodCash, "Paiement à la livraison", append(slices.Clone(uemoa), "CM"), nil, 100, 500_000},
}

func ruleFor(m Method) (methodRule, bool) {
	for _, r := range methodRules {
		if r.Method == m {
			return r, true
		}
	}
	return methodRule{}, false
}

func (r methodRule) allows(country, currency string) bool {
	if country != "" && len(r.Countries) > 0 && !slices.Contains(r.Countries, strings.ToUpper(country)) {
		return false
	}
	if currency != "" && len(r.Currencies) > 0 && !slices.Contains(r.Currencies, strings.ToUpper(currency)) {
		return false
	}
	return true
}
