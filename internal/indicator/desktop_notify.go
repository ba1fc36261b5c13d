package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Freedesktop urgency levels carried in the "urgency" hint.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// desktopNotification is one replaceable freedesktop notification.
type desktopNotification struct {
	AppName   string
	ReplaceID uint32
	Summary   string
	Body      string
	Urgency   byte
	TimeoutMS int
}

// args renders the busctl Notify call. Some servers keep critical
// notifications on screen past expire_timeout.
func (d desktopNotification) args() []string {
	return []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		d.AppName,
		strconv.FormatUint(uint64(d.ReplaceID), 10),
		"",
		d.Summary,
		d.Body,
		"0", // actions
		"1", "urgency", "y", strconv.Itoa(int(d.Urgency)),
		strconv.Itoa(d.TimeoutMS),
	}
}

// desktopNotify sends a freedesktop notification over DBus via busctl.
// It returns the notification ID assigned by the server.
func desktopNotify(ctx context.Context, n desktopNotification) (uint32, error) {
	out, err := exec.CommandContext(ctx, "busctl", n.args()...).CombinedOutput()
	if err != nil {
		return 0, busctlError("desktop notify", err, out)
	}

	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", strings.TrimSpace(string(out)))
	}

	value, parseErr := strconv.ParseUint(fields[1], 10, 32)
	if parseErr != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], parseErr)
	}
	return uint32(value), nil
}

// desktopDismiss requests explicit close by notification ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	out, err := exec.CommandContext(ctx, "busctl",
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"CloseNotification",
		"u",
		strconv.FormatUint(uint64(id), 10),
	).CombinedOutput()
	if err != nil {
		return busctlError("desktop dismiss", err, out)
	}
	return nil
}

func busctlError(op string, err error, out []byte) error {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", op, err, trimmed)
}
