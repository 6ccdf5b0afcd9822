// Package mailer provides CodeSender implementations for the engine:
// a Resend-backed HTTP sender for production and a log sender for
// development.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ledgerly/auth"
)

// ResendSender delivers one-time codes by email through the Resend
// HTTP API. It implements [auth.CodeSender].
type ResendSender struct {
	apiKey  string
	from    string
	client  *http.Client
	baseURL string
}

// NewResendSender reads RESEND_API_KEY from the environment and
// returns a sender posting from the given address.
func NewResendSender(from string) (*ResendSender, error) {
	key := os.Getenv("RESEND_API_KEY")
	if key == "" {
		return nil, errors.New("RESEND_API_KEY not set")
	}

	return &ResendSender{
		apiKey: key,
		from:   from,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL: "https://api.resend.com",
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *ResendSender) SendCode(ctx context.Context, email string, purpose auth.CodePurpose, code string) error {
	subject, intro := purposeCopy(purpose)

	body := sendRequest{
		From:    s.from,
		To:      []string{email},
		Subject: subject,
		HTML: `
			<p>` + intro + `</p>
			<p>Your code is: <strong>` + code + `</strong></p>
			<p>If you did not request this, you can ignore this email.</p>
		`,
	}

	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+"/emails",
		bytes.NewBuffer(b),
	)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		return errors.New("failed to send code email: " + buf.String())
	}

	return nil
}

func purposeCopy(purpose auth.CodePurpose) (subject, intro string) {
	switch purpose {
	case auth.PurposePasswordReset:
		return "Reset your password", "Use this code to reset your password:"
	case auth.PurposeTwoFactorEnable:
		return "Confirm two-factor authentication", "Use this code to finish setting up two-factor authentication:"
	default:
		return "Verify your email", "Use this code to verify your email address:"
	}
}

// LogSender writes codes to a log function instead of delivering them.
// For development only: codes end up in plain text wherever the log
// goes.
type LogSender struct {
	Logf func(format string, args ...any)
}

func (s LogSender) SendCode(_ context.Context, email string, purpose auth.CodePurpose, code string) error {
	logf := s.Logf
	if logf == nil {
		logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	logf("code delivery: email=%s purpose=%s code=%s", email, purpose, code)
	return nil
}
