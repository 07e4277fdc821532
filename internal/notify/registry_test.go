package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy-backend/internal/models"
)

type stubNotifier struct{ sent []string }

func (s *stubNotifier) Send(ctx context.Context, target, token, text string) error {
	s.sent = append(s.sent, text)
	return nil
}
func (s *stubNotifier) ValidateTarget(string) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(models.ChannelKindSlack)
	require.Error(t, err, "empty registry must not resolve any kind")

	stub := &stubNotifier{}
	r.Register(models.ChannelKindSlack, stub)

	n, err := r.Get(models.ChannelKindSlack)
	require.NoError(t, err)
	require.NoError(t, n.Send(context.Background(), "C123", "tok", "hello"))
	assert.Equal(t, []string{"hello"}, stub.sent)

	// Re-registering the same kind replaces the notifier.
	replacement := &stubNotifier{}
	r.Register(models.ChannelKindSlack, replacement)
	n, err = r.Get(models.ChannelKindSlack)
	require.NoError(t, err)
	assert.Same(t, replacement, n)
}

func TestSlackValidateTarget(t *testing.T) {
	n := NewSlackNotifier()

	assert.NoError(t, n.ValidateTarget("C12345678"))
	assert.NoError(t, n.ValidateTarget("G87654321"))
	assert.NoError(t, n.ValidateTarget("D11111111"))

	assert.Error(t, n.ValidateTarget(""))
	assert.Error(t, n.ValidateTarget("#general"))
	assert.Error(t, n.ValidateTarget("random-channel"))
}

func TestSlackSendRequiresToken(t *testing.T) {
	n := NewSlackNotifier()
	err := n.Send(context.Background(), "C12345678", "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty bot token")
}
