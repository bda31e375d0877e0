package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                 "/",
		"/metrics":                         "/metrics",
		"/v1/oauth/token":                  "/v1/oauth/token",
		"/v1/lnurl/callback?k1=ab&sig=":    "/v1/lnurl/callback",
		"/v1/pof/challenges/01HXYZ":        "/v1/pof/challenges/:id",
		"/v1/pof/challenges/01HXYZ/verify": "/v1/pof/challenges/:id",
		"/v1/pof/challenges":               "/v1/pof/challenges",
		"/v1/lnurl/sessions/01HXYZ":        "/v1/lnurl/sessions/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
