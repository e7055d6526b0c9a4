package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/crisos/crisos-core/pkg/logging"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "alerts@example.org"}, nil))
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "alerts@example.org"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, defaultFromName, sender.fromName)

	sender = NewSendGridSender(SendGridConfig{APIKey: "key", FromName: "Ops"}, nil)
	assert.Equal(t, "Ops", sender.fromName)
}

type fakeSendGrid struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*sendGridResponse, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return &sendGridResponse{StatusCode: f.status}, nil
}

func TestSendGridSender_Send(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := &SendGridSender{client: fake, fromEmail: "alerts@example.org", fromName: "Ops", logger: logging.Default()}

	err := sender.Send(context.Background(), EmailMessage{To: "oncall@example.org", Subject: "s", Body: "b"})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "s", fake.sent[0].Subject)
	assert.Equal(t, "alerts@example.org", fake.sent[0].From.Address)

	fake.status = 401
	err = sender.Send(context.Background(), EmailMessage{To: "oncall@example.org"})
	assert.ErrorContains(t, err, "status 401")

	fake.err = errors.New("dial tcp")
	err = sender.Send(context.Background(), EmailMessage{To: "oncall@example.org"})
	assert.ErrorContains(t, err, "dial tcp")
}

func TestSendGridSender_NilClient(t *testing.T) {
	var sender *SendGridSender
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "x@example.org"}))
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))

	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "alerts@example.org"}, nil)
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{To: "oncall@example.org", Subject: "High risk", Body: "details"})
	require.NoError(t, err)
	require.NotNil(t, fake.input)
	assert.Equal(t, "Crisos Alerts <alerts@example.org>", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"oncall@example.org"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "details", aws.ToString(fake.input.Content.Simple.Body.Text.Data))

	fake.err = errors.New("throttled")
	assert.ErrorContains(t, sender.Send(context.Background(), EmailMessage{To: "oncall@example.org"}), "throttled")
}
