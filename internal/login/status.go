package login

import "strings"

// Status is the observable state of a session.
type Status string

const (
	StatusPending     Status = "pending"
	StatusWaitingScan Status = "waiting_scan"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// Classify maps one progress message to a status, or "" when the message
// carries no marker. Success markers are checked first, and the bare
// strings "200" and "500" count as success and failure.
func Classify(msg string) Status {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "success"), strings.Contains(msg, "登录成功"), msg == "200":
		return StatusSuccess
	case strings.Contains(lower, "failed"), strings.Contains(msg, "失败"), msg == "500":
		return StatusFailed
	case strings.Contains(lower, "qrcode"), strings.Contains(msg, "二维码"):
		return StatusWaitingScan
	}
	return ""
}

// Fold applies a drained batch to current. A terminal current status never
// changes. Otherwise the last terminal message in the batch wins, then the
// last non-terminal one.
func Fold(current Status, batch []string) Status {
	if current.Terminal() {
		return current
	}
	var lastTerminal, lastOther Status
	for _, m := range batch {
		c := Classify(m)
		switch {
		case c == "":
		case c.Terminal():
			lastTerminal = c
		default:
			lastOther = c
		}
	}
	if lastTerminal != "" {
		return lastTerminal
	}
	if lastOther != "" {
		return lastOther
	}
	return current
}
