package connection

// WakeReason identifies the host lifecycle signal behind an immediate
// reconnect request.
type WakeReason uint8

const (
	// WakeVisible fires when the app becomes visible again.
	WakeVisible WakeReason = iota + 1

	// WakeFocus fires when the window regains focus.
	WakeFocus

	// WakeOnline fires when the network transitions to online.
	WakeOnline

	// WakePageShow fires when the page is restored from a cached or
	// suspended state.
	WakePageShow

	// WakeResume fires when the device resumes from sleep.
	WakeResume
)

// String returns a human-readable signal name.
func (r WakeReason) String() string {
	switch r {
	case WakeVisible:
		return "visible"
	case WakeFocus:
		return "focus"
	case WakeOnline:
		return "online"
	case WakePageShow:
		return "pageshow"
	case WakeResume:
		return "resume"
	default:
		return "unknown"
	}
}
