package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIsAtLeast(t *testing.T) {
	cases := []struct {
		platform string
		cutoff   string
		want     bool
	}{
		{"10.3.0", "10.3.0", true},
		{"10.2.9", "10.3.0", false},
		{"10.4.0", "10.3.0", true},
		{"9.0.0", "10.3.0", false},
		{"10.3", "10.3.0", true},
	}

	for _, tc := range cases {
		ctx := Context{PlatformVersion: tc.platform}
		if got := ctx.IsAtLeast(tc.cutoff); got != tc.want {
			t.Errorf("IsAtLeast(%s) against platform %s: expected %v, got %v", tc.cutoff, tc.platform, tc.want, got)
		}
	}
}

func TestIntrospectClaimsDoesNotRequireValidSignature(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "user-guid",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("this-secret-is-unknown-to-us"))
	if err != nil {
		t.Fatalf("failed to build test token: %v", err)
	}

	got, err := IntrospectClaims(signed)
	if err != nil {
		t.Fatalf("IntrospectClaims failed: %v", err)
	}
	if got["sub"] != "user-guid" {
		t.Errorf("expected sub claim to round-trip, got %v", got["sub"])
	}
}

func TestHasPrivilege(t *testing.T) {
	u := User{Privileges: []string{"ADMINISTRATION", "DATADOWNLOADING"}}
	if !u.HasPrivilege("ADMINISTRATION") {
		t.Error("expected ADMINISTRATION privilege to be present")
	}
	if u.HasPrivilege("DEVELOPER") {
		t.Error("did not expect DEVELOPER privilege to be present")
	}
}
