package bypass

import (
	"net/http"
	"testing"
)

func TestDetectCloudflare(t *testing.T) {
	res := Response{
		StatusCode: 200,
		Headers:    http.Header{"Server": {"nginx"}},
		Body:       []byte("OK"),
	}
	if detected, _ := detectCloudflare(res); detected {
		t.Errorf("expected not detected")
	}

	res = Response{
		StatusCode: 403,
		Headers:    http.Header{"Server": {"cloudflare"}},
		Body:       []byte("Access Denied"),
	}
	if detected, src := detectCloudflare(res); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by header")
	}

	res = Response{
		StatusCode: 503,
		Body:       []byte("<html>... cf-turnstile ...</html>"),
	}
	if detected, src := detectCloudflare(res); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by body")
	}
}

func TestDetectAkamai(t *testing.T) {
	res := Response{
		StatusCode: 403,
		Headers:    http.Header{"Server": {"AkamaiGHost"}},
	}
	if detected, src := detectAkamai(res); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by header")
	}

	res = Response{
		StatusCode: 403,
		Body:       []byte("Access Denied... Reference #123.456"),
	}
	if detected, src := detectAkamai(res); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by body")
	}
}

func TestDetectDataDome(t *testing.T) {
	res := Response{
		StatusCode: 403,
		Headers:    http.Header{"x-datadome": {"protected"}},
	}
	if detected, src := detectDataDome(res); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by non-canonical header")
	}

	res = Response{
		StatusCode: 403,
		Body:       []byte(`<script src="https://geo.captcha-delivery.com/captcha/"></script>`),
	}
	if detected, _ := detectDataDome(res); !detected {
		t.Errorf("expected DataDome detection by body")
	}
}

func TestDetectPerimeterX(t *testing.T) {
	res := Response{
		StatusCode: 403,
		Body:       []byte(`<div id="px-captcha"></div>`),
	}
	if detected, src := detectPerimeterX(res); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX detection")
	}
}

func TestDetectGoogleSorry(t *testing.T) {
	res := Response{
		StatusCode: 429,
		Body:       []byte("Our systems have detected unusual traffic from your computer network."),
	}
	if detected, src := detectGoogleSorry(res); !detected || src != "Google" {
		t.Errorf("expected Google interstitial detection")
	}

	res.StatusCode = 500
	if detected, _ := detectGoogleSorry(res); detected {
		t.Errorf("5xx pages are not the interstitial")
	}
}

func TestAnalyze(t *testing.T) {
	blocked := Response{
		StatusCode: 403,
		Headers:    http.Header{"Server": {"cloudflare"}},
	}
	if v := Analyze(blocked, DefaultDetectors()); !v.Blocked || v.Source != "Cloudflare" {
		t.Errorf("expected Cloudflare verdict, got %+v", v)
	}

	clean := Response{StatusCode: 200, Body: []byte("<html>Acme launches a new product.</html>")}
	if v := Analyze(clean, DefaultDetectors()); v.Blocked {
		t.Errorf("expected clean verdict, got %+v", v)
	}

	if v := Analyze(blocked, nil); v.Blocked {
		t.Errorf("no detectors should never block")
	}
}
