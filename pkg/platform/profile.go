package platform

import (
	"runtime"
	"strings"
	"time"
)

// Keepalive timing constants. The adaptive mechanism (shorter interval
// and bounded pong wait on mobile) is the contract; the exact values
// are tuning.
const (
	// DesktopPingInterval is the keepalive interval on desktop platforms.
	DesktopPingInterval = 20 * time.Second

	// DesktopPongTimeout is how long a desktop client waits for the pong.
	DesktopPongTimeout = 10 * time.Second

	// MobilePingInterval is the keepalive interval on mobile platforms,
	// tuned short to counter OS-level connection suspension.
	MobilePingInterval = 15 * time.Second

	// MobilePongTimeout is how long a mobile client waits for the pong.
	MobilePongTimeout = 8 * time.Second
)

// Profile is the static client device fingerprint plus the keepalive
// timing derived from it.
type Profile struct {
	// OS is the detected operating system family.
	OS string

	// Browser is the detected browser family ("cli" for native hosts).
	Browser string

	// Mobile indicates a mobile operating system.
	Mobile bool

	// IOS indicates an Apple mobile device.
	IOS bool

	// Embedded indicates the client runs inside an embedding host
	// (an iframe in the browser rendition).
	Embedded bool

	// PingInterval is the keepalive ping interval for this profile.
	PingInterval time.Duration

	// PongTimeout is the bounded wait for a pong before the socket is
	// considered dead.
	PongTimeout time.Duration
}

// Detect builds a profile from a browser user agent string and the
// embedding flag.
func Detect(userAgent string, embedded bool) Profile {
	p := Profile{Embedded: embedded}

	switch {
	case containsAny(userAgent, "iPhone", "iPad", "iPod"):
		p.OS = "ios"
		p.IOS = true
		p.Mobile = true
	case strings.Contains(userAgent, "Android"):
		p.OS = "android"
		p.Mobile = true
	case strings.Contains(userAgent, "Windows"):
		p.OS = "windows"
	case strings.Contains(userAgent, "Macintosh"):
		p.OS = "macos"
	case strings.Contains(userAgent, "CrOS"):
		p.OS = "chromeos"
	case strings.Contains(userAgent, "Linux"):
		p.OS = "linux"
	default:
		p.OS = "unknown"
	}

	// Order matters: Chrome UAs contain "Safari", Edge UAs contain both.
	switch {
	case strings.Contains(userAgent, "Firefox"):
		p.Browser = "firefox"
	case strings.Contains(userAgent, "Edg"):
		p.Browser = "edge"
	case strings.Contains(userAgent, "Chrome"):
		p.Browser = "chrome"
	case strings.Contains(userAgent, "Safari"):
		p.Browser = "safari"
	default:
		p.Browser = "unknown"
	}

	p.applyTiming()
	return p
}

// Host builds a profile for a native (non-browser) host process.
func Host(embedded bool) Profile {
	p := Profile{
		OS:       runtime.GOOS,
		Browser:  "cli",
		Embedded: embedded,
	}
	p.applyTiming()
	return p
}

// applyTiming derives the keepalive timing from the platform flags.
func (p *Profile) applyTiming() {
	if p.Mobile {
		p.PingInterval = MobilePingInterval
		p.PongTimeout = MobilePongTimeout
		return
	}
	p.PingInterval = DesktopPingInterval
	p.PongTimeout = DesktopPongTimeout
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
