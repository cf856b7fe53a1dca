package providers

import (
	"regexp"
	"strings"
)

// PhonePlan describes a national numbering plan: the country calling code
// and how many national digits follow it in international form.
type PhonePlan struct {
	CountryCode string
	LocalDigits int
}

var (
	PlanCI = PhonePlan{CountryCode: "225", LocalDigits: 8}
	PlanSN = PhonePlan{CountryCode: "221", LocalDigits: 9}
	PlanCM = PhonePlan{CountryCode: "237", LocalDigits: 9}
	PlanML = PhonePlan{CountryCode: "223", LocalDigits: 8}
	PlanBF = PhonePlan{CountryCode: "226", LocalDigits: 8}
)

// PlanFor maps an ISO 3166 alpha-2 country to its plan; unknown countries
// fall back to Côte d'Ivoire.
func PlanFor(country string) PhonePlan {
	switch strings.ToUpper(country) {
	case "SN":
		return PlanSN
	case "CM":
		return PlanCM
	case "ML":
		return PlanML
	case "BF":
		return PlanBF
	default:
		return PlanCI
	}
}

// FormatPhoneNumber brings a phone number into +<cc><national> form.
// A number already in that form is returned unchanged.
func FormatPhoneNumber(raw string, plan PhonePlan) string {
	raw = strings.TrimSpace(raw)
	plus := strings.HasPrefix(raw, "+")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	switch {
	case plus:
		return "+" + digits
	case strings.HasPrefix(digits, "00"):
		return "+" + digits[2:]
	case strings.HasPrefix(digits, "0"):
		national := digits[1:]
		if len(digits) >= plan.LocalDigits {
			national = digits[len(digits)-plan.LocalDigits:]
		}
		return "+" + plan.CountryCode + national
	case strings.HasPrefix(digits, plan.CountryCode) && len(digits) == len(plan.CountryCode)+plan.LocalDigits:
		return "+" + digits
	default:
		return "+" + plan.CountryCode + digits
	}
}

var (
	mtnCI = regexp.MustCompile(`^\+225(0[157]|4[789])\d{6}$`)

	orangeCI = regexp.MustCompile(`^\+225(0[789]|4[789]|5[789]|7[789]|8[789])\d{6}$`)
	orangeSN = regexp.MustCompile(`^\+2217[78]\d{7}$`)
	orangeCM = regexp.MustCompile(`^\+2376(9\d|5[5-9])\d{6}$`)
	orangeML = regexp.MustCompile(`^\+223(7\d|8[2-4]|9\d)\d{6}$`)
	orangeBF = regexp.MustCompile(`^\+226(0[4-7]|5[4-7]|6[4-8]|7[4-9])\d{6}$`)

	waveSN = regexp.MustCompile(`^\+2217[05678]\d{7}$`)
)

// IsValidMTNNumber expects a number already passed through FormatPhoneNumber.
func IsValidMTNNumber(phone string) bool {
	return mtnCI.MatchString(phone)
}

func IsValidOrangeNumber(phone string) bool {
	return orangeCI.MatchString(phone) ||
		orangeSN.MatchString(phone) ||
		orangeCM.MatchString(phone) ||
		orangeML.MatchString(phone) ||
		orangeBF.MatchString(phone)
}

// Wave operates in Côte d'Ivoire and Senegal only.
func IsValidWaveNumber(phone string) bool {
	return orangeCI.MatchString(phone) || mtnCI.MatchString(phone) || waveSN.MatchString(phone)
}
