package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sony/gobreaker/v2"
)

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends email via AWS SES using the SDK v2, behind the same
// in-process breaker as the HTTP providers.
type SESProvider struct {
	client  sesAPI
	from    string
	breaker *gobreaker.CircuitBreaker[*sesv2.SendEmailOutput]
}

// NewSESProvider loads the default AWS credential chain for region.
func NewSESProvider(ctx context.Context, region, from string) (*SESProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESProviderWithClient(sesv2.NewFromConfig(cfg), from), nil
}

// NewSESProviderWithClient is used by tests to inject a fake SES client.
func NewSESProviderWithClient(client sesAPI, from string) *SESProvider {
	return &SESProvider{
		client:  client,
		from:    from,
		breaker: gobreaker.NewCircuitBreaker[*sesv2.SendEmailOutput](breakerSettings("ses", sesCallerFault)),
	}
}

// sesCallerFault reports whether err leaves the SES endpoint healthy: a
// rejected recipient or an unverified sender is not an outage.
func sesCallerFault(err error) bool {
	if err == nil {
		return true
	}
	var (
		rejected *types.MessageRejected
		notVerif *types.MailFromDomainNotVerifiedException
		badReq   *types.BadRequestException
	)
	return errors.As(err, &rejected) || errors.As(err, &notVerif) || errors.As(err, &badReq)
}

func (p *SESProvider) SendEmail(ctx context.Context, msg *EmailMessage) (*SendResponse, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	for name, value := range msg.Tags {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String(name), Value: aws.String(value)})
	}

	out, err := p.breaker.Execute(func() (*sesv2.SendEmailOutput, error) {
		return p.client.SendEmail(ctx, input)
	})
	if err != nil {
		return nil, mapSESError(err)
	}
	return &SendResponse{MessageID: aws.ToString(out.MessageId)}, nil
}

// mapSESError rewrites SES exceptions into messages the failure classifier
// recognises.
func mapSESError(err error) error {
	var (
		throttled *types.TooManyRequestsException
		limit     *types.LimitExceededException
		rejected  *types.MessageRejected
		notVerif  *types.MailFromDomainNotVerifiedException
		paused    *types.SendingPausedException
	)
	switch {
	case errors.As(err, &throttled), errors.As(err, &limit):
		return fmt.Errorf("ses rate limit: %w", err)
	case errors.As(err, &rejected):
		return fmt.Errorf("ses invalid email: %w", err)
	case errors.As(err, &notVerif):
		return fmt.Errorf("ses sender not verified: %w", err)
	case errors.As(err, &paused):
		return fmt.Errorf("ses service unavailable: %w", err)
	}
	return fmt.Errorf("ses send: %w", err)
}

var _ EmailSender = (*SESProvider)(nil)
