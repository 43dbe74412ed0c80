package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(nil)
	if err != nil || cfg != nil {
		t.Fatalf("nil settings: cfg=%v err=%v", cfg, err)
	}
	cfg, err = Setup(&Settings{Enabled: false, Dir: "/nowhere"})
	if err != nil || cfg != nil {
		t.Fatalf("disabled settings: cfg=%v err=%v", cfg, err)
	}
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	cfg, err := Setup(&Settings{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.3"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Fatalf("min version: %x", cfg.MinVersion)
	}
	for _, f := range []string{tlsCrt, tlsKey, tlsCaCrt} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Fatalf("expected %s: %v", f, err)
		}
	}
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if leaf.Subject.CommonName != "localhost" || len(leaf.IPAddresses) != 1 {
		t.Fatalf("unexpected leaf: cn=%s ips=%v", leaf.Subject.CommonName, leaf.IPAddresses)
	}

	// A second setup reuses the generated files.
	st, _ := os.Stat(filepath.Join(dir, tlsCrt))
	if _, err := Setup(&Settings{Enabled: true, Dir: dir, AutoGenerate: true}); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	st2, _ := os.Stat(filepath.Join(dir, tlsCrt))
	if !st.ModTime().Equal(st2.ModTime()) {
		t.Fatalf("certificate regenerated")
	}
}

func TestSetupErrors(t *testing.T) {
	if _, err := Setup(&Settings{Enabled: true}); err == nil {
		t.Fatalf("expected error without cert source")
	}
	if _, err := Setup(&Settings{Enabled: true, Dir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for empty dir without auto_generate")
	}
	if _, err := Setup(&Settings{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.0"}); err == nil {
		t.Fatalf("expected error for unsupported version")
	}
}

func TestSafeReadFileOutsideBase(t *testing.T) {
	base := t.TempDir()
	if _, err := safeReadFile(base, filepath.Join(base, "..", "x")); err == nil {
		t.Fatalf("expected rejection outside base dir")
	}
}
