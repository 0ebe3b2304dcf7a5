// Package crypto encrypts OAuth refresh tokens before they are persisted.
package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Encryptor turns secrets into opaque strings safe to store, and back.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KMSClient is the part of *kms.Client used here.
type KMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSEncryptor uses an AWS KMS key and base64-encodes the ciphertext blob.
type KMSEncryptor struct {
	client KMSClient
	keyID  string
}

// NewKMSEncryptor accepts a key ID, ARN, or alias (e.g. "alias/drivegate-token-key").
func NewKMSEncryptor(client KMSClient, keyID string) *KMSEncryptor {
	return &KMSEncryptor{client: client, keyID: keyID}
}

func (e *KMSEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	out, err := e.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(e.keyID),
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return "", fmt.Errorf("kms encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

func (e *KMSEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	out, err := e.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: blob,
		KeyId:          aws.String(e.keyID),
	})
	if err != nil {
		return "", fmt.Errorf("kms decrypt: %w", err)
	}
	return string(out.Plaintext), nil
}

const devPrefix = "dev:"

// DevEncryptor only tags values so dev-mode records are recognisable. It
// provides no confidentiality.
type DevEncryptor struct{}

func NewDevEncryptor() DevEncryptor { return DevEncryptor{} }

func (DevEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	return devPrefix + plaintext, nil
}

func (DevEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, devPrefix), nil
}
