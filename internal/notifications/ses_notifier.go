package notifications

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	InsecureSkipVerify bool
}

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESNotifier struct {
	client      SESAPI
	fromAddress string
	fromName    string
}

func NewSESNotifier(cfg SESConfig, fromAddress, fromName string) (*SESNotifier, error) {
	if cfg.Region == "" {
		return nil, errors.New("ses notifier: region is required")
	}
	if fromAddress == "" {
		return nil, errors.New("ses notifier: from address is required")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
				MinVersion:         tls.VersionTLS12,
			},
		},
	}
	awsCfg := aws.Config{
		Region:     cfg.Region,
		HTTPClient: httpClient,
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		)
	}

	return NewSESNotifierWithClient(ses.NewFromConfig(awsCfg), fromAddress, fromName), nil
}

func NewSESNotifierWithClient(client SESAPI, fromAddress, fromName string) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
	}
}

// Send delivers body as the HTML part of the message.
func (s *SESNotifier) Send(ctx context.Context, to, subject, body string) error {
	source := s.fromAddress
	if s.fromName != "" {
		source = fmt.Sprintf("%q <%s>", s.fromName, s.fromAddress)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("send email via ses: %w", err)
	}

	return nil
}
