package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/flipwire/flipwire/internal/protocol"
)

// Launch starts an app on the peripheral by name or full path.
func (d *Dispatcher) Launch(ctx context.Context, app, args string) error {
	if _, err := d.session.CallOnce(ctx, &protocol.AppStartRequest{Name: app, Args: args}); err != nil {
		return fmt.Errorf("launching %s: %w", app, err)
	}
	fmt.Printf("Launched %s\n", app)
	return nil
}

// Alert plays the audiovisual locate alert on the peripheral.
func (d *Dispatcher) Alert(ctx context.Context) error {
	if _, err := d.session.CallOnce(ctx, &protocol.PlayAlertRequest{}); err != nil {
		return fmt.Errorf("playing alert: %w", err)
	}
	fmt.Println("Alert played")
	return nil
}

// SyncTime sets the peripheral clock to the host's local time.
func (d *Dispatcher) SyncTime(ctx context.Context) error {
	now := time.Now()
	req := &protocol.SetDateTimeRequest{DateTime: hostDateTime(now)}
	if _, err := d.session.CallOnce(ctx, req); err != nil {
		return fmt.Errorf("setting clock: %w", err)
	}
	fmt.Printf("Clock set to %s\n", now.Format("2006-01-02 15:04:05"))
	return nil
}

// hostDateTime converts a host time to the peripheral RTC layout. The
// RTC counts weekdays Monday=1 through Sunday=7; time.Weekday counts
// Sunday=0.
func hostDateTime(t time.Time) protocol.DateTime {
	return protocol.DateTime{
		Hour:    uint32(t.Hour()),
		Minute:  uint32(t.Minute()),
		Second:  uint32(t.Second()),
		Day:     uint32(t.Day()),
		Month:   uint32(t.Month()),
		Year:    uint32(t.Year()),
		Weekday: uint32((int(t.Weekday())+6)%7 + 1),
	}
}
