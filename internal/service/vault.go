package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/repository"
	"golang.org/x/crypto/argon2"
)

// expiryBuffer makes IsExpired report true slightly before the real
// expiry so callers refresh proactively instead of racing the vendor.
const expiryBuffer = 5 * time.Minute

// StoreParams carries one OAuth token set as returned by a vendor's
// token endpoint.
type StoreParams struct {
	AccessToken  string
	RefreshToken *string
	ExpiresIn    int
	TokenType    string
	Scope        *string
	VendorUserID *string
}

// TokenVault encrypts and persists OAuth credentials per integration.
// Tokens are sealed with AES-256-GCM; the key is derived once at startup
// with argon2id, and an unusable key fails construction rather than
// individual calls.
type TokenVault struct {
	aead  cipher.AEAD
	creds repository.CredentialRepository
}

// NewTokenVault derives the encryption key and prepares the cipher.
// Returns an error when the key material is unusable; callers must treat
// that as a fatal configuration error.
func NewTokenVault(encryptionKey, keySalt string, creds repository.CredentialRepository) (*TokenVault, error) {
	if encryptionKey == "" {
		return nil, fmt.Errorf("vault encryption key is not configured")
	}

	key := argon2.IDKey([]byte(encryptionKey), []byte(keySalt), 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault aead: %w", err)
	}

	return &TokenVault{aead: aead, creds: creds}, nil
}

// Store encrypts and persists a token set, overwriting any prior
// credential for the integration.
func (v *TokenVault) Store(ctx context.Context, integrationID string, params StoreParams) (*domain.Credential, error) {
	if params.AccessToken == "" {
		return nil, fmt.Errorf("access token must not be empty")
	}

	encryptedAccess, err := v.seal(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var encryptedRefresh *string
	if params.RefreshToken != nil && *params.RefreshToken != "" {
		sealed, err := v.seal(*params.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		encryptedRefresh = &sealed
	}

	tokenType := params.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	expiresAt := time.Now().UTC().Add(time.Duration(params.ExpiresIn) * time.Second)

	credential := &domain.Credential{
		IntegrationID:         integrationID,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		TokenType:             tokenType,
		Scope:                 params.Scope,
		ExpiresAt:             &expiresAt,
		VendorUserID:          params.VendorUserID,
	}

	if err := v.creds.Upsert(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	return credential, nil
}

// Retrieve decrypts the stored token set for an integration.
// Returns repository.ErrNotFound when no credential exists.
func (v *TokenVault) Retrieve(ctx context.Context, integrationID string) (string, *string, error) {
	credential, err := v.creds.GetByIntegrationID(ctx, integrationID)
	if err != nil {
		return "", nil, err
	}

	accessToken, err := v.open(credential.EncryptedAccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	var refreshToken *string
	if credential.EncryptedRefreshToken != nil {
		plain, err := v.open(*credential.EncryptedRefreshToken)
		if err != nil {
			return "", nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		refreshToken = &plain
	}

	return accessToken, refreshToken, nil
}

// IsExpired reports whether the access token needs a refresh.
// A missing credential or missing expiry counts as expired.
func (v *TokenVault) IsExpired(ctx context.Context, integrationID string) (bool, error) {
	credential, err := v.creds.GetByIntegrationID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	if credential.ExpiresAt == nil {
		return true, nil
	}

	return !time.Now().UTC().Before(credential.ExpiresAt.Add(-expiryBuffer)), nil
}

// Delete removes the credential for an integration.
// Returns false when no credential existed.
func (v *TokenVault) Delete(ctx context.Context, integrationID string) (bool, error) {
	return v.creds.DeleteByIntegrationID(ctx, integrationID)
}

// seal encrypts a plaintext string to base64(nonce || ciphertext)
func (v *TokenVault) seal(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open decrypts a base64(nonce || ciphertext) string
func (v *TokenVault) open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not valid base64: %w", err)
	}

	if len(sealed) < v.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext is too short")
	}

	nonce, ciphertext := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
