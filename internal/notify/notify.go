package notify

import (
	"context"
	"fmt"

	"github.com/mvoronin91/washbooking/internal/kafka"
)

// Sender delivers customer notifications for booking events. The real
// channel (email, sms) sits behind this; the worker feeds it from the
// notifications topic.
type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	fmt.Printf("notify customer %d: booking %s is now %s\n", event.CustomerID, event.BookingID, event.Status)
	return nil
}
