package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP exchange the detectors inspect.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Verdict reports whether a response is a bot-protection challenge and
// which vendor issued it.
type Verdict struct {
	Blocked bool   `json:"blocked"`
	Source  string `json:"source,omitempty"`
}

// Detector examines a response for one vendor's challenge signature.
type Detector func(res Response) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectGoogleSorry,
	}
}

// Analyze runs res through detectors and returns the first positive verdict.
func Analyze(res Response, detectors []Detector) Verdict {
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return Verdict{Blocked: true, Source: source}
		}
	}
	return Verdict{}
}

func header(h http.Header, key string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	// Headers built by hand may not be canonicalised.
	for k, vals := range h {
		if strings.EqualFold(k, key) && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func serverContains(res Response, vendor string) bool {
	return strings.Contains(strings.ToLower(header(res.Headers, "Server")), vendor)
}

func bodyContainsAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}

func detectCloudflare(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if serverContains(res, "cloudflare") ||
		bodyContainsAny(res.Body, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if serverContains(res, "akamai") {
		return true, "Akamai"
	}
	// Generic Akamai block page.
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if serverContains(res, "datadome") ||
		header(res.Headers, "X-DataDome") != "" ||
		header(res.Headers, "X-DataDome-Response") != "" ||
		bodyContainsAny(res.Body, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(res Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(res.Headers, "X-Px-Captcha") != "" ||
		bodyContainsAny(res.Body, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectGoogleSorry catches Google's "unusual traffic" interstitial, served
// with 429 or as a 200 after a redirect to /sorry/.
func detectGoogleSorry(res Response) (bool, string) {
	if res.StatusCode != http.StatusTooManyRequests && res.StatusCode != http.StatusOK {
		return false, ""
	}
	if bodyContainsAny(res.Body, "/sorry/index", "unusual traffic from your computer network") {
		return true, "Google"
	}
	return false, ""
}
