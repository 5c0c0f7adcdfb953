package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// CredentialMessage is what the tenant receives after a successful
// provision. Delivery is best-effort; a failure never rolls back the
// instance.
type CredentialMessage struct {
	Email    string `json:"email"`
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Notifier delivers generated credentials to the tenant.
type Notifier interface {
	SendCredentials(ctx context.Context, msg CredentialMessage) error
}

// LogNotifier is the default implementation: it records that a delivery
// would have happened. The password itself is not logged.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) SendCredentials(ctx context.Context, msg CredentialMessage) error {
	log.Info().
		Str("email", msg.Email).
		Str("url", msg.URL).
		Str("user", msg.User).
		Msg("credential notification (log sink)")
	return nil
}
