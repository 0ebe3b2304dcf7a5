package crypto

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reversingKMS "encrypts" by reversing bytes and checks the key id.
type reversingKMS struct {
	keyID string
	fail  bool
}

func reverse(b []byte) []byte {
	out := bytes.Clone(b)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (k *reversingKMS) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if k.fail {
		return nil, errors.New("AccessDeniedException")
	}
	if aws.ToString(in.KeyId) != k.keyID {
		return nil, errors.New("NotFoundException")
	}
	return &kms.EncryptOutput{CiphertextBlob: reverse(in.Plaintext)}, nil
}

func (k *reversingKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if k.fail {
		return nil, errors.New("AccessDeniedException")
	}
	return &kms.DecryptOutput{Plaintext: reverse(in.CiphertextBlob)}, nil
}

func TestKMSEncryptor_RoundTrip(t *testing.T) {
	e := NewKMSEncryptor(&reversingKMS{keyID: "alias/test"}, "alias/test")
	ctx := context.Background()

	ct, err := e.Encrypt(ctx, "refresh-token-1")
	require.NoError(t, err)
	assert.NotEqual(t, "refresh-token-1", ct)

	pt, err := e.Decrypt(ctx, ct)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-1", pt)
}

func TestKMSEncryptor_Errors(t *testing.T) {
	ctx := context.Background()
	e := NewKMSEncryptor(&reversingKMS{keyID: "alias/test", fail: true}, "alias/test")

	_, err := e.Encrypt(ctx, "x")
	assert.ErrorContains(t, err, "kms encrypt")

	_, err = e.Decrypt(ctx, "not base64!!")
	assert.ErrorContains(t, err, "decode ciphertext")
}

func TestDevEncryptor(t *testing.T) {
	ctx := context.Background()
	e := NewDevEncryptor()

	ct, _ := e.Encrypt(ctx, "abc")
	assert.Equal(t, "dev:abc", ct)

	pt, _ := e.Decrypt(ctx, ct)
	assert.Equal(t, "abc", pt)
}
