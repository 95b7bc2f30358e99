package main

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockConnector struct {
	err   error
	calls []string
}

func (m *mockConnector) Connect(_ context.Context, dsn string) error {
	m.calls = append(m.calls, dsn)
	return m.err
}

type mockPinger struct {
	err  error
	addr string
}

func (m *mockPinger) Ping(_ context.Context, addr, _ string) error {
	m.addr = addr
	return m.err
}

func TestValidateDatabaseURL(t *testing.T) {
	tests := []struct {
		name      string
		dsn       string
		connErr   error
		wantValid bool
		wantMsg   string
	}{
		{"valid", "postgres://surfcast:pw@db.internal:5432/surfcast", nil, true, "connected to db.internal"},
		{"postgresql scheme", "postgresql://surfcast:pw@db:5432/surfcast?sslmode=require", nil, true, "connected"},
		{"wrong scheme", "mysql://u:p@db/surfcast", nil, false, "scheme"},
		{"no host", "postgres://u:p@/surfcast", nil, false, "missing host"},
		{"no database", "postgres://u:p@db:5432/", nil, false, "database name"},
		{"no password", "postgres://u@db:5432/surfcast", nil, false, "password"},
		{"connection refused", "postgres://u:p@db:5432/surfcast", errors.New("dial tcp: refused"), false, "connection failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidatorWithDeps(&mockConnector{err: tt.connErr}, nil, "")
			got := v.ValidateDatabaseURL(context.Background(), tt.dsn)
			if got.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (%s)", got.Valid, tt.wantValid, got.Message)
			}
			if !strings.Contains(got.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateDatabaseURL_NoConnector(t *testing.T) {
	v := NewValidatorWithDeps(nil, nil, "")
	got := v.ValidateDatabaseURL(context.Background(), "postgres://u:p@db:5432/surfcast")
	if !got.Valid || !strings.Contains(got.Message, "not tested") {
		t.Errorf("got %+v", got)
	}
}

func TestValidateRedisPassword(t *testing.T) {
	pinger := &mockPinger{}
	v := NewValidatorWithDeps(nil, pinger, "cache:6379")
	if got := v.ValidateRedisPassword(context.Background(), "secret"); !got.Valid {
		t.Errorf("expected valid, got %+v", got)
	}
	if pinger.addr != "cache:6379" {
		t.Errorf("pinged %q", pinger.addr)
	}

	v = NewValidatorWithDeps(nil, &mockPinger{err: errors.New("WRONGPASS")}, "cache:6379")
	if got := v.ValidateRedisPassword(context.Background(), "bad"); got.Valid {
		t.Error("expected invalid on rejected password")
	}

	v = NewValidatorWithDeps(nil, &mockPinger{err: errors.New("unused")}, "")
	if got := v.ValidateRedisPassword(context.Background(), "anything"); !got.Valid {
		t.Error("without an address the password is accepted unverified")
	}
}

func TestValidateQueueURL(t *testing.T) {
	v := NewValidatorWithDeps(nil, nil, "")
	tests := map[string]bool{
		"https://sqs.eu-west-1.amazonaws.com/123456789012/surfcast-notifications.fifo": true,
		"https://sqs.eu-west-1.amazonaws.com/123456789012/surfcast-notifications":      false,
		"http://sqs.eu-west-1.amazonaws.com/123456789012/q.fifo":                       false,
		"https://sqs.eu-west-1.amazonaws.com/1234/q.fifo":                              false,
	}
	for in, want := range tests {
		if got := v.ValidateQueueURL(context.Background(), in); got.Valid != want {
			t.Errorf("ValidateQueueURL(%q).Valid = %v, want %v", in, got.Valid, want)
		}
	}
}

func TestValidateBucketName(t *testing.T) {
	v := NewValidatorWithDeps(nil, nil, "")
	tests := map[string]bool{
		"surfcast-diagnostics": true,
		"surfcast.diag.eu":     true,
		"Surfcast":             false,
		"ab":                   false,
		"bad..name":            false,
		"-leading":             false,
	}
	for in, want := range tests {
		if got := v.ValidateBucketName(context.Background(), in); got.Valid != want {
			t.Errorf("ValidateBucketName(%q).Valid = %v, want %v", in, got.Valid, want)
		}
	}
}
