package utils

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"
)

func testSigner(t *testing.T) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	t.Setenv("GCS_CREDENTIALS_JSON", "")
	t.Setenv("GCS_SIGNER_EMAIL", "reports@example.iam.gserviceaccount.com")
	t.Setenv("GCS_SIGNER_PRIVATE_KEY", strings.ReplaceAll(string(pemKey), "\n", "\\n"))
}

func TestSignDownloadWithPrivateKey(t *testing.T) {
	testSigner(t)
	t.Setenv("GCS_BUCKET", "rta-reports")

	link, err := SignDownload(context.Background(), "gs://rta-reports/reports/capital-gains/20240401/cg.xlsx", time.Hour)
	if err != nil {
		t.Fatalf("SignDownload: %v", err)
	}
	if link.ObjectKey != "reports/capital-gains/20240401/cg.xlsx" {
		t.Fatalf("object key = %q", link.ObjectKey)
	}
	if !strings.Contains(link.URL, "rta-reports") || !strings.Contains(link.URL, "X-Goog-Signature=") {
		t.Fatalf("unexpected url %q", link.URL)
	}
	if time.Until(link.ExpiresAt) > time.Hour || time.Until(link.ExpiresAt) < 50*time.Minute {
		t.Fatalf("expires at %s", link.ExpiresAt)
	}
}

func TestSignDownloadRejectsBadInput(t *testing.T) {
	testSigner(t)
	ctx := context.Background()

	t.Setenv("GCS_BUCKET", "")
	if _, err := SignDownload(ctx, "a.xlsx", time.Hour); err == nil {
		t.Fatalf("expected error without bucket")
	}
	t.Setenv("GCS_BUCKET", "rta-reports")
	cases := []struct {
		key     string
		expires time.Duration
	}{
		{"", time.Hour},
		{"reports/../secret", time.Hour},
		{"a.xlsx", 0},
		{"a.xlsx", 8 * 24 * time.Hour},
	}
	for _, c := range cases {
		if _, err := SignDownload(ctx, c.key, c.expires); err == nil {
			t.Fatalf("SignDownload(%q, %s) expected error", c.key, c.expires)
		}
	}
}
