// Package mailer sends outbound confirmation mail through AWS SES v2.
package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/haltman-io/mailfwd/internal/config"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// SESSender sends mail through the SES v2 API.
type SESSender struct {
	client *sesv2.Client
	from   string
}

// NewSESSender builds a sender from static credentials. Missing From or
// Region is a deployment defect surfaced at construction, not at send time.
func NewSESSender(ctx context.Context, cfg appconfig.SESConfig) (*SESSender, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("mailer: from address is not configured")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("mailer: SES region is not configured")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("mailer: loading AWS config: %w", err)
	}

	return &SESSender{
		client: sesv2.NewFromConfig(awsCfg),
		from:   cfg.From,
	}, nil
}

// Send dispatches one email. Errors propagate: a failed dispatch must never
// be reported upstream as sent.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Text)},
					Html: &types.Content{Data: aws.String(msg.HTML)},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("mailer: sending to %s: %w", msg.To, err)
	}
	return nil
}
