// Package secret resolves named secrets from SSM Parameter Store or, in dev
// mode, from environment variables.
package secret

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient is the part of *ssm.Client used here.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver returns the value of a named secret.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver reads SecureString parameters.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %q is empty", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// EnvResolver maps a parameter path to an environment variable:
// "/drivegate/google-client-secret" is read from GOOGLE_CLIENT_SECRET.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver returns a Resolver that reads the process environment.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	key := envName(name)
	val, ok := r.lookup(key)
	if !ok || val == "" {
		return "", fmt.Errorf("env %s (for %q) is not set", key, name)
	}
	return val, nil
}

func envName(param string) string {
	return strings.ToUpper(strings.ReplaceAll(path.Base(param), "-", "_"))
}

// Lookup resolves name, returning fallback when it cannot be resolved.
// The second result reports whether the secret was found.
func Lookup(ctx context.Context, r Resolver, name, fallback string) (string, bool) {
	val, err := r.GetSecret(ctx, name)
	if err != nil {
		return fallback, false
	}
	return val, true
}
