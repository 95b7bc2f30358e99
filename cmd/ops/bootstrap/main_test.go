package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type mockIdentityClient struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (m mockIdentityClient) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return m.out, m.err
}

func TestValidateEnvironment(t *testing.T) {
	tests := []struct {
		env     string
		wantErr bool
	}{
		{"dev", false},
		{"staging", false},
		{"prod", false},
		{"local", true},
		{"DEV", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if err := validateEnvironment(tt.env); (err != nil) != tt.wantErr {
				t.Errorf("validateEnvironment(%q) error = %v, wantErr %v", tt.env, err, tt.wantErr)
			}
		})
	}
}

func TestVerifyIdentity(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := mockIdentityClient{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/ops"),
	}}

	bctx, err := verifyIdentity(context.Background(), client, "dev", "surfcast", "eu-west-1", logger)
	if err != nil {
		t.Fatalf("verifyIdentity() error = %v", err)
	}
	if bctx.AccountID != "123456789012" || bctx.CallerARN != "arn:aws:iam::123456789012:user/ops" {
		t.Errorf("unexpected identity: %+v", bctx)
	}

	_, err = verifyIdentity(context.Background(), mockIdentityClient{err: errors.New("ExpiredToken")}, "dev", "surfcast", "eu-west-1", logger)
	if err == nil || !strings.Contains(err.Error(), `profile "surfcast"`) {
		t.Errorf("expected wrapped identity error, got %v", err)
	}
}

func TestConfirmProduction(t *testing.T) {
	bctx := &BootstrapContext{Environment: "prod", AccountID: "123456789012", AWSRegion: "eu-west-1"}
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"  YES \n", true},
		{"no\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			if got := confirmProduction(bctx, strings.NewReader(tt.input), &out); got != tt.want {
				t.Errorf("confirmProduction(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "PRODUCTION") {
				t.Error("warning banner not printed")
			}
		})
	}
}

func TestPrintBanner(t *testing.T) {
	var out bytes.Buffer
	printBanner(&out, &BootstrapContext{Environment: "staging", AccountID: "1", AWSRegion: "eu-west-1", AWSProfile: "ops"})

	for _, want := range []string{"Surfcast Bootstrap", "/staging/surfcast/", "Profile:      ops"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("banner missing %q:\n%s", want, out.String())
		}
	}
}
