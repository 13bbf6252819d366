package accounts

import (
	"context"
	"encoding/base64"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultDecryptor decrypts account credential blobs through the Vault
// transit engine. Plaintext never touches disk.
type VaultDecryptor struct {
	client  *vault.Client
	keyName string
}

// NewVaultDecryptor connects to Vault and binds to a transit key
func NewVaultDecryptor(address, token, keyName string) (*VaultDecryptor, error) {
	cfg := vault.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	if keyName == "" {
		keyName = "account-credentials"
	}

	log.Info().Str("key", keyName).Msg("Vault decryptor initialized")

	return &VaultDecryptor{client: client, keyName: keyName}, nil
}

// Decrypt resolves a transit ciphertext to plaintext
func (d *VaultDecryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("empty ciphertext")
	}

	path := fmt.Sprintf("transit/decrypt/%s", d.keyName)
	secret, err := d.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": ciphertext,
	})
	if err != nil {
		return "", fmt.Errorf("vault decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault decrypt returned no data")
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return "", fmt.Errorf("vault decrypt response missing plaintext")
	}

	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("vault plaintext not base64: %w", err)
	}

	return string(plaintext), nil
}

// StaticDecryptor returns the ciphertext unchanged. Used in tests and for
// deployments that store plaintext credentials.
type StaticDecryptor struct{}

// Decrypt implements Decryptor
func (StaticDecryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return ciphertext, nil
}
