package auth

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-webauthn/webauthn/webauthn"
)

// PasskeyUser implements webauthn.User for a wallet address.
type PasskeyUser struct {
	address     string
	credentials []webauthn.Credential
}

// NewPasskeyUser creates a PasskeyUser for the given address.
func NewPasskeyUser(address string, credentials []webauthn.Credential) *PasskeyUser {
	return &PasskeyUser{address: address, credentials: credentials}
}

// WebAuthnID returns a stable user handle derived from the address.
func (u *PasskeyUser) WebAuthnID() []byte {
	h := sha256.Sum256([]byte(u.address))
	return h[:]
}

// WebAuthnName returns the address.
func (u *PasskeyUser) WebAuthnName() string { return u.address }

// WebAuthnDisplayName returns a shortened address.
func (u *PasskeyUser) WebAuthnDisplayName() string {
	if len(u.address) <= 12 {
		return u.address
	}
	return u.address[:6] + "..." + u.address[len(u.address)-4:]
}

// WebAuthnCredentials returns the stored credentials.
func (u *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// Address returns the wallet address the passkey resumes.
func (u *PasskeyUser) Address() string { return u.address }

// ErrCredentialNotFound is returned for an unknown passkey credential.
var ErrCredentialNotFound = errors.New("credential not found")

// PasskeyStore manages passkey credentials in SQLite.
type PasskeyStore struct {
	db *sql.DB
}

// NewPasskeyStore creates a passkey store.
func NewPasskeyStore(db *sql.DB) *PasskeyStore {
	return &PasskeyStore{db: db}
}

// StoredCredential is a passkey credential with metadata.
type StoredCredential struct {
	ID         string
	Address    string
	Name       string
	Credential webauthn.Credential
}

// Save stores a new passkey credential for address.
func (s *PasskeyStore) Save(address, name string, cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	if _, err := s.db.Exec(
		"INSERT INTO passkey_credentials (id, address, name, credential_json) VALUES (?, ?, ?, ?)",
		credentialKey(cred.ID), address, name, string(data),
	); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	return nil
}

// Update replaces the stored credential data, e.g. after a login bumps
// its sign counter.
func (s *PasskeyStore) Update(cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}
	if _, err := s.db.Exec(
		"UPDATE passkey_credentials SET credential_json = ? WHERE id = ?",
		string(data), credentialKey(cred.ID),
	); err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	return nil
}

// ListByAddress returns all credentials registered for address.
func (s *PasskeyStore) ListByAddress(address string) ([]StoredCredential, error) {
	rows, err := s.db.Query(
		"SELECT id, address, name, credential_json FROM passkey_credentials WHERE address = ? ORDER BY created_at",
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("closing rows", "err", err)
		}
	}()

	var result []StoredCredential
	for rows.Next() {
		var sc StoredCredential
		var data string
		if err := rows.Scan(&sc.ID, &sc.Address, &sc.Name, &data); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &sc.Credential); err != nil {
			return nil, fmt.Errorf("unmarshaling credential: %w", err)
		}
		result = append(result, sc)
	}

	return result, rows.Err()
}

// WebAuthnCredentials returns just the webauthn.Credential slice for address.
func (s *PasskeyStore) WebAuthnCredentials(address string) ([]webauthn.Credential, error) {
	stored, err := s.ListByAddress(address)
	if err != nil {
		return nil, err
	}

	creds := make([]webauthn.Credential, len(stored))
	for i, sc := range stored {
		creds[i] = sc.Credential
	}

	return creds, nil
}

// UserForCredential loads the passkey user owning a raw credential ID.
// It backs discoverable logins, where the browser picks the credential.
func (s *PasskeyStore) UserForCredential(rawID []byte) (*PasskeyUser, error) {
	var address string
	err := s.db.QueryRow(
		"SELECT address FROM passkey_credentials WHERE id = ?",
		credentialKey(rawID),
	).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	creds, err := s.WebAuthnCredentials(address)
	if err != nil {
		return nil, err
	}
	return NewPasskeyUser(address, creds), nil
}

// Delete removes one of address's credentials.
func (s *PasskeyStore) Delete(id, address string) error {
	result, err := s.db.Exec(
		"DELETE FROM passkey_credentials WHERE id = ? AND address = ?",
		id, address,
	)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

func credentialKey(rawID []byte) string {
	return fmt.Sprintf("%x", rawID)
}
