// internal/email/sender.go
package email

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/daveenci-ai/daveenci-ai-avatar/internal/config"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/email/templates"

	"gopkg.in/gomail.v2"
)

// Sender delivers account mail over SMTP. When SMTP_HOST is unset the
// sender stays constructed but disabled, and callers skip it.
type Sender struct {
	cfg *config.Config
}

func NewSender(cfg *config.Config) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) Enabled() bool {
	return s.cfg.SMTPHost != ""
}

// SendVerification mails the click-to-verify link for a new or changed
// email address.
func (s *Sender) SendVerification(ctx context.Context, to, name, verifyURL string) error {
	if !s.Enabled() {
		return fmt.Errorf("smtp is not configured")
	}
	body, err := templates.RenderEmailVerification(templates.VerificationData{
		Name:      name,
		VerifyURL: verifyURL,
	})
	if err != nil {
		return fmt.Errorf("render verification: %w", err)
	}
	return s.send(ctx, to, "Verify your email address", body)
}

func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	log.Printf("📧 [SEND] To: %s | Subject: %s", to, subject)

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.cfg.SMTPFrom))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	dialer := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)

	// Exponential backoff: 1s, 2s, 4s → max 3 retries
	for attempt := 0; attempt < 3; attempt++ {
		if err := dialer.DialAndSend(m); err != nil {
			delay := time.Duration(1<<attempt) * time.Second
			log.Printf("❌ [ATTEMPT %d] Failed to send email to %s: %v → retrying in %v", attempt+1, to, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("email send cancelled: %w", ctx.Err())
			}
			continue
		}
		log.Printf("✅ [SUCCESS] Email sent to %s (Subject: %s)", to, subject)
		return nil
	}

	log.Printf("💥 [FAILED] All retries exhausted for %s", to)
	return fmt.Errorf("failed to send email to %s after 3 attempts", to)
}
