package apperr

type Kind string

type AppError struct {
	Kind      Kind
	PublicMsg string            // message safe to show to the customer
	Fields    map[string]string // per-field validation errors (optional)
	Status    int               // overrides the kind's default HTTP status when non-zero
	Code      string            // machine-readable reason, e.g. a provider error code
	Err       error             // internal cause (logged, never rendered)
}
