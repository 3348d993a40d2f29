package notifier

import "context"

// TextNotifier sends a pre-rendered text message.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}
