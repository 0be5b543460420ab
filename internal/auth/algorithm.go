package auth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pkcs12"
)

// Algorithm bundles a JWT signing method with its signing and verification
// keys. It is resolved once at startup and read-only afterwards.
type Algorithm struct {
	name      string
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// Name returns the configured algorithm name.
func (a Algorithm) Name() string { return a.name }

// Insecure reports whether the algorithm performs no real signing. Only the
// "none" algorithm is insecure; it exists for local testing and must never
// be used in production.
func (a Algorithm) Insecure() bool { return a.name == AlgorithmNone }

// BuildAlgorithm resolves the signing algorithm selected by the
// configuration. Missing or unreadable key material is fatal: the error is
// returned once at startup and never retried.
func BuildAlgorithm(cfg Config) (Algorithm, error) {
	switch cfg.Algorithm {
	case AlgorithmNone:
		return Algorithm{
			name:      AlgorithmNone,
			method:    jwt.SigningMethodNone,
			signKey:   jwt.UnsafeAllowNoneSignatureType,
			verifyKey: jwt.UnsafeAllowNoneSignatureType,
		}, nil
	case AlgorithmHMAC256:
		return Algorithm{
			name:      AlgorithmHMAC256,
			method:    jwt.SigningMethodHS256,
			signKey:   []byte(cfg.Secret),
			verifyKey: []byte(cfg.Secret),
		}, nil
	case AlgorithmHMAC512:
		return Algorithm{
			name:      AlgorithmHMAC512,
			method:    jwt.SigningMethodHS512,
			signKey:   []byte(cfg.Secret),
			verifyKey: []byte(cfg.Secret),
		}, nil
	case AlgorithmECDSA256:
		priv, pub, err := loadECKeyPair(cfg.Keystore, cfg.Key)
		if err != nil {
			return Algorithm{}, fmt.Errorf("%w: load ecdsa256 keys: %v", ErrConfig, err)
		}
		return Algorithm{
			name:      AlgorithmECDSA256,
			method:    jwt.SigningMethodES256,
			signKey:   priv,
			verifyKey: pub,
		}, nil
	default:
		return Algorithm{}, fmt.Errorf("%w: unsupported algorithm %q", ErrConfig, cfg.Algorithm)
	}
}

func loadECKeyPair(ks KeystoreConfig, key KeyConfig) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	data, err := os.ReadFile(ks.Location)
	if err != nil {
		return nil, nil, fmt.Errorf("read keystore %s: %w", ks.Location, err)
	}
	switch ks.Type {
	case "pkcs12", "p12":
		return decodePKCS12(data, ks.Password)
	case "pem":
		return decodePEMKeyPair(data)
	default:
		return nil, nil, fmt.Errorf("unsupported keystore type %q", ks.Type)
	}
}

func decodePKCS12(data []byte, password string) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	rawKey, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, fmt.Errorf("decode pkcs12 container: %w", err)
	}
	priv, ok := rawKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("keystore key is %T, not an EC private key", rawKey)
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("certificate key is %T, not an EC public key", cert.PublicKey)
	}
	return priv, pub, nil
}

// decodePEMKeyPair reads a PEM bundle holding an EC private key and
// optionally a certificate or public key. When no public half is present it
// is derived from the private key.
func decodePEMKeyPair(data []byte) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	var (
		priv *ecdsa.PrivateKey
		pub  *ecdsa.PublicKey
	)
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "EC PRIVATE KEY":
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parse EC private key: %w", err)
			}
			priv = key
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parse private key: %w", err)
			}
			ecKey, ok := key.(*ecdsa.PrivateKey)
			if !ok {
				return nil, nil, fmt.Errorf("private key is %T, not an EC key", key)
			}
			priv = ecKey
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parse certificate: %w", err)
			}
			if ecKey, ok := cert.PublicKey.(*ecdsa.PublicKey); ok {
				pub = ecKey
			}
		case "PUBLIC KEY":
			key, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parse public key: %w", err)
			}
			if ecKey, ok := key.(*ecdsa.PublicKey); ok {
				pub = ecKey
			}
		}
	}
	if priv == nil {
		return nil, nil, fmt.Errorf("no EC private key found in PEM bundle")
	}
	if pub == nil {
		pub = &priv.PublicKey
	}
	return priv, pub, nil
}
