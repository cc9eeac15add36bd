package remote

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ssh"
)

// KeyBits is the size of generated RSA keys.
const KeyBits = 2048

// KeyPair is the fleet's own SSH identity.
type KeyPair struct {
	PrivatePath string
	PublicPath  string
	Signer      ssh.Signer
	// Created is set when the pair was generated by this call.
	Created bool
}

// AuthorizedKey returns the public key as one authorized_keys line, without
// the trailing newline.
func (k *KeyPair) AuthorizedKey() string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(k.Signer.PublicKey())))
}

// Fingerprint is the hex BLAKE2b-512 digest of the public key's wire
// encoding. It identifies the key in logs and execution records.
func (k *KeyPair) Fingerprint() string {
	sum := blake2b.Sum512(k.Signer.PublicKey().Marshal())
	return hex.EncodeToString(sum[:])
}

// SHA256 is the OpenSSH style fingerprint, as printed by ssh-keygen -l.
func (k *KeyPair) SHA256() string {
	return ssh.FingerprintSHA256(k.Signer.PublicKey())
}

// LoadOrCreateKey loads the private key at privPath, generating and saving
// an RSA pair when it doesn't exist. The public half is rewritten if missing.
func LoadOrCreateKey(privPath, pubPath string) (*KeyPair, error) {
	if pubPath == "" {
		pubPath = privPath + ".pub"
	}
	kp := &KeyPair{PrivatePath: privPath, PublicPath: pubPath}

	data, err := os.ReadFile(privPath)
	switch {
	case err == nil:
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			suggestion := "Remove it to let fleet generate a new key, or point ssh.private_key elsewhere"
			if stderrors.As(err, &missing) {
				suggestion = "fleet keys can't carry a passphrase; point ssh.private_key at an unencrypted key"
			}
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				"Can't parse private key "+privPath, suggestion)
		}
		kp.Signer = signer
	case os.IsNotExist(err):
		signer, pemBytes, err := generateRSA()
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH, "Can't generate SSH key", "")
		}
		if err := os.MkdirAll(filepath.Dir(privPath), 0o700); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				"Can't create key directory "+filepath.Dir(privPath), "")
		}
		if err := os.WriteFile(privPath, pemBytes, 0o600); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH, "Can't write private key "+privPath, "")
		}
		kp.Signer = signer
		kp.Created = true
	default:
		return nil, errors.WrapWithCode(err, errors.ErrSSH, "Can't read private key "+privPath, "")
	}

	if _, err := os.Stat(pubPath); kp.Created || os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(pubPath), 0o700); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH, "Can't create key directory", "")
		}
		if err := os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(kp.Signer.PublicKey()), 0o644); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH, "Can't write public key "+pubPath, "")
		}
	}
	return kp, nil
}

// LoadSigner reads an unencrypted private key, such as a per-host key file.
func LoadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH, "Can't read private key "+path, "")
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH, "Can't parse private key "+path,
			"Per-host key files must be unencrypted")
	}
	return signer, nil
}

// generateRSA returns a signer and its PKCS#1 PEM encoding.
func generateRSA() (ssh.Signer, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("wrap rsa key: %w", err)
	}
	return signer, pemBytes, nil
}
