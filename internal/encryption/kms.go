package encryption

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// KMSAPI is the subset of the KMS client used here.
type KMSAPI interface {
	Encrypt(ctx context.Context, in *kms.EncryptInput, opts ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, opts ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSSealer encrypts free text written by users before it is stored.
type KMSSealer struct {
	client  KMSAPI
	keyID   string
	context map[string]string
}

func NewKMSSealer(client KMSAPI, keyID string) *KMSSealer {
	return &KMSSealer{
		client: client,
		keyID:  keyID,
		context: map[string]string{
			"Purpose": "contact-message",
			"Service": "mindmend-backend",
		},
	}
}

// Seal returns base64 ciphertext for plaintext. Empty input stays empty.
func (k *KMSSealer) Seal(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	out, err := k.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(k.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: k.context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Open reverses Seal.
func (k *KMSSealer) Open(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	out, err := k.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		EncryptionContext: k.context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(out.Plaintext), nil
}
