package platform

import "testing"

const (
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	androidUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"
	macUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	winFfUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func TestDetectIOS(t *testing.T) {
	p := Detect(iphoneUA, true)

	if !p.IOS || !p.Mobile {
		t.Errorf("profile = %+v, want iOS mobile", p)
	}
	if p.OS != "ios" || p.Browser != "safari" {
		t.Errorf("OS/Browser = %s/%s", p.OS, p.Browser)
	}
	if !p.Embedded {
		t.Error("embedded flag lost")
	}
	if p.PingInterval != MobilePingInterval || p.PongTimeout != MobilePongTimeout {
		t.Errorf("timing = %v/%v, want mobile timing", p.PingInterval, p.PongTimeout)
	}
}

func TestDetectAndroidChrome(t *testing.T) {
	p := Detect(androidUA, false)

	if p.OS != "android" || !p.Mobile || p.IOS {
		t.Errorf("profile = %+v, want android mobile", p)
	}
	if p.Browser != "chrome" {
		t.Errorf("Browser = %s, want chrome", p.Browser)
	}
}

func TestDetectDesktop(t *testing.T) {
	p := Detect(macUA, false)

	if p.Mobile {
		t.Errorf("profile = %+v, want desktop", p)
	}
	if p.OS != "macos" || p.Browser != "chrome" {
		t.Errorf("OS/Browser = %s/%s", p.OS, p.Browser)
	}
	if p.PingInterval != DesktopPingInterval || p.PongTimeout != DesktopPongTimeout {
		t.Errorf("timing = %v/%v, want desktop timing", p.PingInterval, p.PongTimeout)
	}
}

func TestDetectFirefoxOnWindows(t *testing.T) {
	p := Detect(winFfUA, false)

	if p.OS != "windows" || p.Browser != "firefox" {
		t.Errorf("OS/Browser = %s/%s", p.OS, p.Browser)
	}
}

func TestMobileTimingIsTighter(t *testing.T) {
	if MobilePingInterval >= DesktopPingInterval {
		t.Error("mobile ping interval must be shorter than desktop")
	}
	if MobilePongTimeout >= DesktopPongTimeout {
		t.Error("mobile pong timeout must be shorter than desktop")
	}
}

func TestHostProfile(t *testing.T) {
	p := Host(false)

	if p.Browser != "cli" {
		t.Errorf("Browser = %s, want cli", p.Browser)
	}
	if p.PingInterval == 0 || p.PongTimeout == 0 {
		t.Error("host profile missing keepalive timing")
	}
}
