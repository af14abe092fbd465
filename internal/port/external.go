package port

import "context"

// Notifier delivers an alert message. Implementations must apply their own
// bounded timeout; failures are reported as errors, never panics.
type Notifier interface {
	Send(ctx context.Context, recipients []string, subject, body string) (messageID string, err error)
}

// TextClassifier is the optional LLM collaborator used for ambiguous
// high-band scores. A nil classifier means the capability is unconfigured
// and the pipeline must fall back to its rule-based score.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (*TextClassification, error)
}

// TextClassification is a refined score and category from the LLM.
type TextClassification struct {
	Score      int     `json:"score"`
	Category   string  `json:"category"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// IdentityClient requests access revocation from the external identity
// system. Best-effort; failures are surfaced as handler failures.
type IdentityClient interface {
	RevokeAccess(ctx context.Context, employeeID, reason string) error
}
