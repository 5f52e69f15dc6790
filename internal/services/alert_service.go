package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESClient is the subset of the SES API used for alerts
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AlertService mails security alerts to operators through AWS SES
type AlertService struct {
	client      SESClient
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESAlertService loads the AWS configuration for region and creates an AlertService
func NewSESAlertService(ctx context.Context, region, fromAddress string, recipients []string, logger *slog.Logger) (*AlertService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAlertService(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

// NewAlertService creates an AlertService over an existing SES client
func NewAlertService(client SESClient, fromAddress string, recipients []string, logger *slog.Logger) *AlertService {
	return &AlertService{
		client:      client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      logger,
	}
}

// SendSecurityAlert mails event to every recipient
func (s *AlertService) SendSecurityAlert(ctx context.Context, event models.SecurityEvent) error {
	if len(s.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[security] %s", strings.ReplaceAll(strings.ToLower(string(event.Type)), "_", " "))
	if event.Identity != "" {
		subject += " for " + event.Identity
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: s.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(alertHTML(event)),
				},
				Text: &types.Content{
					Data: aws.String(alertText(event)),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send security alert via SES",
			slog.String("event_type", string(event.Type)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	s.logger.InfoContext(ctx, "security alert sent",
		slog.String("event_type", string(event.Type)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

type alertField struct {
	name  string
	value string
}

func alertFields(event models.SecurityEvent) []alertField {
	fields := []alertField{
		{"Event", string(event.Type)},
		{"Time", event.Timestamp.UTC().Format(time.RFC3339)},
		{"Identity", event.Identity},
		{"Client IP", event.ClientIP},
		{"User agent", event.UserAgent},
		{"Risk score", fmt.Sprintf("%d", event.RiskScore)},
	}

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, alertField{k, fmt.Sprint(event.Metadata[k])})
	}
	return fields
}

func alertText(event models.SecurityEvent) string {
	var b strings.Builder
	b.WriteString("Security alert\n\n")
	for _, f := range alertFields(event) {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.name, f.value)
	}
	b.WriteString("\nThis is an automated message.\n")
	return b.String()
}

func alertHTML(event models.SecurityEvent) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
<h2>Security alert</h2>
<table cellpadding="4">
`)
	for _, f := range alertFields(event) {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>\n", html.EscapeString(f.name), html.EscapeString(f.value))
	}
	b.WriteString(`</table>
<p style="color: #666; font-size: 12px;">This is an automated message.</p>
</body>
</html>
`)
	return b.String()
}
