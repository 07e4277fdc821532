package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SlackNotifier posts notifications to a Slack channel using a bot token.
type SlackNotifier struct{}

// NewSlackNotifier creates a SlackNotifier.
func NewSlackNotifier() *SlackNotifier {
	return &SlackNotifier{}
}

// Send posts text to the given Slack channel ID.
func (n *SlackNotifier) Send(ctx context.Context, target string, token string, text string) error {
	if token == "" {
		return fmt.Errorf("slack notifier: empty bot token")
	}

	apiClient := slack.New(token)

	_, _, err := apiClient.PostMessageContext(ctx, target, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post message to Slack channel %s: %w", target, err)
	}

	return nil
}

// ValidateTarget checks the target looks like a Slack channel ID (e.g.
// C12345678).
func (n *SlackNotifier) ValidateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("slack channel ID is required")
	}
	if !strings.HasPrefix(target, "C") && !strings.HasPrefix(target, "G") && !strings.HasPrefix(target, "D") {
		return fmt.Errorf("'%s' does not look like a Slack channel ID", target)
	}
	return nil
}
