package fingerprint

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			// httptest uses a self-signed certificate.
			rt, err := Transport(p, Options{InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}

			resp, err := (&http.Client{Transport: rt}).Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_VerifiesByDefault(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	for _, p := range []Profile{ProfileChrome, ProfileGo} {
		rt, err := Transport(p, Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := (&http.Client{Transport: rt}).Get(ts.URL); err == nil {
			t.Errorf("%s: expected certificate verification failure", p)
		}
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"), Options{})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseProfile(t *testing.T) {
	cases := map[string]Profile{
		"":        ProfileChrome,
		"Chrome":  ProfileChrome,
		"firefox": ProfileFirefox,
		" go ":    ProfileGo,
		"random":  ProfileRandom,
	}
	for in, want := range cases {
		got, err := ParseProfile(in)
		if err != nil || got != want {
			t.Errorf("ParseProfile(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseProfile("netscape"); err == nil {
		t.Error("expected error for unknown profile")
	}
}
