package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSendAlert(t *testing.T) {
	ses := &fakeSES{}
	m := NewWithClient(ses, "noreply@example.org", "MindLogger", zap.NewNop())
	require.True(t, m.Enabled())

	require.NoError(t, m.SendAlert(context.Background(), "owner@example.org", "Mood <Study>", "score above 10"))
	require.Len(t, ses.inputs, 1)
	in := ses.inputs[0]
	assert.Equal(t, "MindLogger <noreply@example.org>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"owner@example.org"}, in.Destination.ToAddresses)
	assert.Equal(t, "Response alert: Mood <Study>", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Contains(t, aws.ToString(in.Content.Simple.Body.Html.Data), "Mood &lt;Study&gt;")
	assert.Contains(t, aws.ToString(in.Content.Simple.Body.Text.Data), "score above 10")
}

func TestDisabledMailerIsNoop(t *testing.T) {
	m, err := New(context.Background(), "us-east-1", "", "", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, m.Enabled())
	assert.NoError(t, m.SendAlert(context.Background(), "x@example.org", "A", "B"))
}

func TestSendError(t *testing.T) {
	ses := &fakeSES{err: errors.New("throttled")}
	m := NewWithClient(ses, "noreply@example.org", "", zap.NewNop())
	err := m.Send(context.Background(), "x@example.org", "s", "<p>b</p>", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Equal(t, "noreply@example.org", aws.ToString(ses.inputs[0].FromEmailAddress))
}
