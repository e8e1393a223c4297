package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/repository"
)

const vaultKey = "test-encryption-key-that-is-32-characters-plus"

// fakeCredentialRepo keeps credentials in memory, keyed by integration.
type fakeCredentialRepo struct {
	creds map[string]*domain.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[string]*domain.Credential)}
}

func (f *fakeCredentialRepo) Upsert(_ context.Context, credential *domain.Credential) error {
	copied := *credential
	f.creds[credential.IntegrationID] = &copied
	return nil
}

func (f *fakeCredentialRepo) GetByIntegrationID(_ context.Context, integrationID string) (*domain.Credential, error) {
	credential, ok := f.creds[integrationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *credential
	return &copied, nil
}

func (f *fakeCredentialRepo) DeleteByIntegrationID(_ context.Context, integrationID string) (bool, error) {
	if _, ok := f.creds[integrationID]; !ok {
		return false, nil
	}
	delete(f.creds, integrationID)
	return true, nil
}

func newTestVault(t *testing.T) (*TokenVault, *fakeCredentialRepo) {
	t.Helper()
	repo := newFakeCredentialRepo()
	vault, err := NewTokenVault(vaultKey, "test-salt", repo)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	return vault, repo
}

func strPtr(s string) *string {
	return &s
}

func TestVaultRefusesEmptyKey(t *testing.T) {
	if _, err := NewTokenVault("", "salt", newFakeCredentialRepo()); err == nil {
		t.Error("Expected vault construction to fail without an encryption key")
	}
}

func TestVaultStoreEncryptsAtRest(t *testing.T) {
	vault, repo := newTestVault(t)
	ctx := context.Background()

	_, err := vault.Store(ctx, "int-1", StoreParams{
		AccessToken:  "access-token-plaintext",
		RefreshToken: strPtr("refresh-token-plaintext"),
		ExpiresIn:    3600,
	})
	if err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}

	stored := repo.creds["int-1"]
	if stored == nil {
		t.Fatal("Expected credential to be persisted")
	}

	if strings.Contains(stored.EncryptedAccessToken, "access-token-plaintext") {
		t.Error("Access token stored in plaintext")
	}
	if stored.EncryptedRefreshToken == nil || strings.Contains(*stored.EncryptedRefreshToken, "refresh-token-plaintext") {
		t.Error("Refresh token stored in plaintext or missing")
	}
	if stored.TokenType != "Bearer" {
		t.Errorf("Expected default token type 'Bearer', got '%s'", stored.TokenType)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	_, err := vault.Store(ctx, "int-1", StoreParams{
		AccessToken:  "access-token-plaintext",
		RefreshToken: strPtr("refresh-token-plaintext"),
		ExpiresIn:    3600,
	})
	if err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}

	access, refresh, err := vault.Retrieve(ctx, "int-1")
	if err != nil {
		t.Fatalf("Failed to retrieve tokens: %v", err)
	}

	if access != "access-token-plaintext" {
		t.Errorf("Expected decrypted access token, got '%s'", access)
	}
	if refresh == nil || *refresh != "refresh-token-plaintext" {
		t.Error("Expected decrypted refresh token")
	}
}

func TestVaultNonceVariesPerSeal(t *testing.T) {
	vault, repo := newTestVault(t)
	ctx := context.Background()

	if _, err := vault.Store(ctx, "int-1", StoreParams{AccessToken: "same-token", ExpiresIn: 3600}); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}
	first := repo.creds["int-1"].EncryptedAccessToken

	if _, err := vault.Store(ctx, "int-1", StoreParams{AccessToken: "same-token", ExpiresIn: 3600}); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}
	second := repo.creds["int-1"].EncryptedAccessToken

	if first == second {
		t.Error("Expected distinct ciphertexts for the same plaintext")
	}
}

func TestVaultKeysDoNotInterchange(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCredentialRepo()

	vault, err := NewTokenVault(vaultKey, "test-salt", repo)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	if _, err := vault.Store(ctx, "int-1", StoreParams{AccessToken: "secret", ExpiresIn: 3600}); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}

	other, err := NewTokenVault("another-encryption-key-32-characters-long!", "test-salt", repo)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	if _, _, err := other.Retrieve(ctx, "int-1"); err == nil {
		t.Error("Expected retrieval with a different key to fail")
	}
}

func TestVaultIsExpired(t *testing.T) {
	vault, repo := newTestVault(t)
	ctx := context.Background()

	// No credential at all counts as expired.
	expired, err := vault.IsExpired(ctx, "missing")
	if err != nil {
		t.Fatalf("IsExpired failed: %v", err)
	}
	if !expired {
		t.Error("Expected missing credential to count as expired")
	}

	// A fresh hour-long token is not expired.
	if _, err := vault.Store(ctx, "int-1", StoreParams{AccessToken: "token", ExpiresIn: 3600}); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}
	expired, err = vault.IsExpired(ctx, "int-1")
	if err != nil {
		t.Fatalf("IsExpired failed: %v", err)
	}
	if expired {
		t.Error("Expected fresh token to not be expired")
	}

	// A token inside the expiry buffer counts as expired.
	soon := time.Now().UTC().Add(2 * time.Minute)
	repo.creds["int-1"].ExpiresAt = &soon
	expired, err = vault.IsExpired(ctx, "int-1")
	if err != nil {
		t.Fatalf("IsExpired failed: %v", err)
	}
	if !expired {
		t.Error("Expected token inside the expiry buffer to count as expired")
	}

	// A missing expiry counts as expired.
	repo.creds["int-1"].ExpiresAt = nil
	expired, err = vault.IsExpired(ctx, "int-1")
	if err != nil {
		t.Fatalf("IsExpired failed: %v", err)
	}
	if !expired {
		t.Error("Expected credential without expiry to count as expired")
	}
}

func TestVaultDelete(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	if _, err := vault.Store(ctx, "int-1", StoreParams{AccessToken: "token", ExpiresIn: 3600}); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}

	deleted, err := vault.Delete(ctx, "int-1")
	if err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}
	if !deleted {
		t.Error("Expected delete to report an existing credential")
	}

	if _, _, err := vault.Retrieve(ctx, "int-1"); err == nil {
		t.Error("Expected retrieval after delete to fail")
	}
}
