package token

import (
	"regexp"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	tok := Generate("club-a", "secret")
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(tok) {
		t.Errorf("token is not hex-encoded SHA-256 output: %q", tok)
	}
}

func TestVerify(t *testing.T) {
	tok := Generate("club-a", "secret")

	if !Verify("club-a", "secret", tok) {
		t.Error("valid token rejected")
	}
	if Verify("club-b", "secret", tok) {
		t.Error("token for club-a must fail verification against club-b")
	}
	if Verify("club-a", "other-secret", tok) {
		t.Error("token must be bound to the shared secret")
	}
	if Verify("club-a", "secret", "") {
		t.Error("empty token accepted")
	}
}
