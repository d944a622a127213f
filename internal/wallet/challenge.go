// Package wallet connects visitors to their wallet account: it proves
// address ownership with a signed challenge and reads balances from the chain.
package wallet

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/evcraddock/estate-market/internal/chain"
)

const challengeTTL = 5 * time.Minute

var (
	// ErrInvalidChallenge is returned for malformed, expired or reused challenges.
	ErrInvalidChallenge = errors.New("invalid or expired challenge")
	// ErrSignatureMismatch is returned when the signature was not made by the challenged address.
	ErrSignatureMismatch = errors.New("signature does not match address")
)

// Challenge is a sign-in message the wallet must sign.
type Challenge struct {
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type challengeClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// Challenger issues and verifies wallet sign-in challenges. The challenge
// state travels in an HS256 token, so nothing is stored until it is used.
type Challenger struct {
	secret []byte
	domain string
	now    func() time.Time

	mu   sync.Mutex
	used map[string]time.Time // nonce -> expiry
}

// NewChallenger creates a Challenger signing tokens with secret. domain
// names the site in the message the user signs.
func NewChallenger(secret []byte, domain string) *Challenger {
	return &Challenger{
		secret: secret,
		domain: domain,
		now:    time.Now,
		used:   make(map[string]time.Time),
	}
}

// Issue creates a challenge for address.
func (c *Challenger) Issue(address string) (*Challenge, error) {
	addr, err := chain.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	// NumericDate keeps whole seconds; the message must survive the round trip.
	issued := c.now().UTC().Truncate(time.Second)
	expires := issued.Add(challengeTTL)

	claims := challengeClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.domain,
			Subject:   addr.Hex(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("signing challenge: %w", err)
	}

	return &Challenge{
		Address:   addr.Hex(),
		Message:   c.message(addr, nonce, issued),
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// Verify checks that signature is the challenged address's personal_sign
// signature over the challenge message, and returns that address.
// Each challenge verifies at most once.
func (c *Challenger) Verify(token, signature string) (common.Address, error) {
	var claims challengeClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.domain),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	if claims.IssuedAt == nil || !common.IsHexAddress(claims.Subject) {
		return common.Address{}, ErrInvalidChallenge
	}

	addr := common.HexToAddress(claims.Subject)
	message := c.message(addr, claims.Nonce, claims.IssuedAt.Time.UTC())

	signer, err := recoverSigner(message, signature)
	if err != nil {
		return common.Address{}, err
	}
	if signer != addr {
		return common.Address{}, ErrSignatureMismatch
	}

	if !c.consume(claims.Nonce, claims.ExpiresAt.Time) {
		return common.Address{}, fmt.Errorf("%w: already used", ErrInvalidChallenge)
	}

	return addr, nil
}

func (c *Challenger) message(addr common.Address, nonce string, issued time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your wallet:\n", c.domain)
	fmt.Fprintf(&b, "%s\n\n", addr.Hex())
	fmt.Fprintf(&b, "Nonce: %s\n", nonce)
	fmt.Fprintf(&b, "Issued At: %s", issued.Format(time.RFC3339))
	return b.String()
}

// consume marks nonce as used, reporting false if it already was.
func (c *Challenger) consume(nonce string, expires time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for n, exp := range c.used {
		if now.After(exp) {
			delete(c.used, n)
		}
	}
	if _, ok := c.used[nonce]; ok {
		return false
	}
	c.used[nonce] = expires
	return true
}

// recoverSigner returns the address that produced an EIP-191 personal
// signature over message.
func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	// Wallets return v as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignMessage produces an EIP-191 personal signature over message, with v
// in {27, 28} as browser wallets return it.
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("signing message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
