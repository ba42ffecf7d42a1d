package upload

import (
	"context"
	"log/slog"
)

// Mailer delivers customer-facing notification mail.
type Mailer interface {
	// SendUploadLink mails the photo upload link to the customer.
	SendUploadLink(ctx context.Context, to, uploadURL, applianceType string) error
}

// LogMailer writes the mail it would send to the log instead of delivering
// it. It stands in whenever no mail provider is configured, so development
// setups still produce working upload links.
type LogMailer struct {
	// From is the configured sender address, logged for inspection.
	From string
}

var _ Mailer = LogMailer{}

// SendUploadLink implements [Mailer].
func (m LogMailer) SendUploadLink(_ context.Context, to, uploadURL, applianceType string) error {
	slog.Warn("mail provider not configured, would send upload link",
		"from", m.From,
		"to", to,
		"upload_url", uploadURL,
		"appliance_type", applianceType)
	return nil
}
