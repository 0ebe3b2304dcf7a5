package secret

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM map[string]string

func (f fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if !aws.ToBool(in.WithDecryption) {
		return nil, fmt.Errorf("decryption not requested")
	}
	val, ok := f[aws.ToString(in.Name)]
	if !ok {
		return nil, fmt.Errorf("ParameterNotFound: %s", aws.ToString(in.Name))
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(val)}}, nil
}

func TestSSMResolver(t *testing.T) {
	r := NewSSMResolver(fakeSSM{
		"/drivegate/state-secret": "s3cr3t",
		"/drivegate/blank":        "",
	})
	ctx := context.Background()

	val, err := r.GetSecret(ctx, "/drivegate/state-secret")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if val != "s3cr3t" {
		t.Errorf("got %q, want %q", val, "s3cr3t")
	}

	if _, err := r.GetSecret(ctx, "/drivegate/missing"); err == nil {
		t.Error("expected error for missing parameter")
	}
	if _, err := r.GetSecret(ctx, "/drivegate/blank"); err == nil {
		t.Error("expected error for empty parameter")
	}
}

func TestEnvResolver(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_SECRET", "from-env")
	r := NewEnvResolver()

	val, err := r.GetSecret(context.Background(), "/drivegate/google-client-secret")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if val != "from-env" {
		t.Errorf("got %q, want %q", val, "from-env")
	}

	if _, err := r.GetSecret(context.Background(), "/drivegate/not-configured-anywhere"); err == nil {
		t.Error("expected error for unset variable")
	}
}

func TestLookup_Fallback(t *testing.T) {
	r := NewSSMResolver(fakeSSM{})
	val, ok := Lookup(context.Background(), r, "/drivegate/state-secret", "dev-only")
	if ok {
		t.Error("expected ok=false")
	}
	if val != "dev-only" {
		t.Errorf("got %q, want fallback", val)
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"/drivegate/state-secret":         "STATE_SECRET",
		"/drivegate/google-client-secret": "GOOGLE_CLIENT_SECRET",
		"/drivegate/api-gateway-secret":   "API_GATEWAY_SECRET",
		"plain-name":                      "PLAIN_NAME",
	}
	for in, want := range tests {
		if got := envName(in); got != want {
			t.Errorf("envName(%q) = %q, want %q", in, got, want)
		}
	}
}
