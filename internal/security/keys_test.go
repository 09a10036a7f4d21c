package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPEM_InlineExpandsLiteralNewlines(t *testing.T) {
	escaped := strings.ReplaceAll(testPublicKeyPEM, "\n", `\n`)
	b, err := LoadPEM(escaped)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(b) != testPublicKeyPEM {
		t.Error("LoadPEM should expand literal \\n sequences")
	}
	if _, err := ParsePublicKey(escaped); err != nil {
		t.Errorf("ParsePublicKey escaped: %v", err)
	}
}

func TestLoadPEM_FilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pub.pem")
	if err := os.WriteFile(path, []byte(testPublicKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	key, err := ParsePublicKey(path)
	if err != nil {
		t.Fatalf("ParsePublicKey with file: %v", err)
	}
	if KeyAlg(key) != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", KeyAlg(key))
	}
}

func TestLoadPEM_Empty(t *testing.T) {
	for _, s := range []string{"", "   "} {
		if _, err := LoadPEM(s); err != ErrInvalidKey {
			t.Errorf("LoadPEM(%q) err = %v, want ErrInvalidKey", s, err)
		}
	}
	if _, err := LoadPEM("/nonexistent/file.pem"); err == nil {
		t.Error("LoadPEM should return error for nonexistent file")
	}
}

func TestParsePrivateKey_RSA(t *testing.T) {
	key, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if KeyAlg(key.Public()) != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", KeyAlg(key.Public()))
	}
}

func TestParseKeys_ECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	signer, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey EC: %v", err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey EC: %v", err)
	}
	if KeyAlg(signer.Public()) != "ES256" || KeyAlg(pub) != "ES256" {
		t.Errorf("KeyAlg = %q/%q, want ES256", KeyAlg(signer.Public()), KeyAlg(pub))
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	cases := []struct {
		name string
		pem  string
	}{
		{"not PEM format", "not a pem format"},
		{"missing END marker", "-----BEGIN PUBLIC KEY-----\ncontent"},
		{"empty PEM block", "-----BEGIN PUBLIC KEY-----\n-----END PUBLIC KEY-----"},
		{"invalid base64", "-----BEGIN PUBLIC KEY-----\n!!!invalid!!!\n-----END PUBLIC KEY-----"},
		{"certificate", "-----BEGIN CERTIFICATE-----\nMIIC\n-----END CERTIFICATE-----"},
		{"nonexistent file", "/nonexistent/key.pem"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePublicKey(tc.pem); err == nil {
				t.Error("ParsePublicKey: want error, got nil")
			}
			if _, err := ParsePrivateKey(strings.ReplaceAll(tc.pem, "PUBLIC", "PRIVATE")); err == nil {
				t.Error("ParsePrivateKey: want error, got nil")
			}
		})
	}
	if _, err := ParsePrivateKey(testPublicKeyPEM); err == nil {
		t.Error("ParsePrivateKey with public key: want error, got nil")
	}
	if _, err := ParsePublicKey(testPrivateKeyPEM); err != ErrInvalidKey {
		t.Errorf("ParsePublicKey with private key err = %v, want ErrInvalidKey", err)
	}
}

func TestKeyAlg_Unsupported(t *testing.T) {
	if alg := KeyAlg(nil); alg != "" {
		t.Errorf("KeyAlg nil: want empty string, got %q", alg)
	}
}
