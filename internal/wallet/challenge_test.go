package wallet

import (
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func personalSign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := SignMessage(key, message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestChallengeRoundTrip(t *testing.T) {
	c := NewChallenger(testSecret, "localhost:8080")
	key, addr := newKey(t)

	ch, err := c.Issue(strings.ToLower(addr.Hex()))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ch.Address != addr.Hex() {
		t.Errorf("address = %s, want checksummed %s", ch.Address, addr.Hex())
	}
	if !strings.Contains(ch.Message, addr.Hex()) || !strings.HasPrefix(ch.Message, "localhost:8080 ") {
		t.Errorf("unexpected message:\n%s", ch.Message)
	}

	got, err := c.Verify(ch.Token, personalSign(t, key, ch.Message))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != addr {
		t.Errorf("verified %s, want %s", got.Hex(), addr.Hex())
	}
}

func TestChallengeRejectsOtherSigner(t *testing.T) {
	c := NewChallenger(testSecret, "localhost")
	_, addr := newKey(t)
	otherKey, _ := newKey(t)

	ch, err := c.Issue(addr.Hex())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := c.Verify(ch.Token, personalSign(t, otherKey, ch.Message)); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
}

func TestChallengeSingleUse(t *testing.T) {
	c := NewChallenger(testSecret, "localhost")
	key, addr := newKey(t)

	ch, err := c.Issue(addr.Hex())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sig := personalSign(t, key, ch.Message)

	if _, err := c.Verify(ch.Token, sig); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := c.Verify(ch.Token, sig); !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("second verify err = %v, want ErrInvalidChallenge", err)
	}
}

func TestChallengeExpires(t *testing.T) {
	c := NewChallenger(testSecret, "localhost")
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }

	key, addr := newKey(t)
	ch, err := c.Issue(addr.Hex())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	c.now = func() time.Time { return start.Add(challengeTTL + time.Second) }
	if _, err := c.Verify(ch.Token, personalSign(t, key, ch.Message)); !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("err = %v, want ErrInvalidChallenge", err)
	}
}

func TestChallengeRejectsForeignToken(t *testing.T) {
	issuer := NewChallenger([]byte("another-secret-another-secret-xx"), "localhost")
	verifier := NewChallenger(testSecret, "localhost")
	key, addr := newKey(t)

	ch, err := issuer.Issue(addr.Hex())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(ch.Token, personalSign(t, key, ch.Message)); !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("err = %v, want ErrInvalidChallenge", err)
	}
}

func TestChallengeBadInput(t *testing.T) {
	c := NewChallenger(testSecret, "localhost")

	if _, err := c.Issue("nope"); err == nil {
		t.Error("expected error issuing for invalid address")
	}

	_, addr := newKey(t)
	ch, err := c.Issue(addr.Hex())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, sig := range []string{"", "0x1234", "not-hex"} {
		if _, err := c.Verify(ch.Token, sig); err == nil {
			t.Errorf("expected error for signature %q", sig)
		}
	}
}

func TestSignMessageRecoversSigner(t *testing.T) {
	key, addr := newKey(t)

	sig, err := SignMessage(key, "hello")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+2*65 {
		t.Fatalf("signature = %q, want 65 hex bytes", sig)
	}

	got, err := recoverSigner("hello", sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != addr {
		t.Errorf("recovered %s, want %s", got.Hex(), addr.Hex())
	}
}
