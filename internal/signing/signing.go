package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dunglas/httpsfv"
)

// Dictionary members of the signature header.
const (
	// SignatureMember carries the base64 signature.
	SignatureMember = "sig"
	// KeyIDMember names the key that produced the signature.
	KeyIDMember = "keyid"
)

var (
	// errNoPEMBlock is returned when the key file holds no PEM data.
	errNoPEMBlock = errors.New("no PEM block found")
	// errNotRSAKey is returned for keys of other algorithms.
	errNotRSAKey = errors.New("key is not an RSA key")
	// errMalformedSignature is returned for headers without a usable sig member.
	errMalformedSignature = errors.New("malformed signature header")
)

// Signer signs response parts with one RSA key.
type Signer struct {
	key   *rsa.PrivateKey
	keyID string
}

// LoadSigner reads a PEM-encoded RSA private key from path.
func LoadSigner(path, keyID string) (*Signer, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	return ParseSigner(data, keyID)
}

// ParseSigner decodes a PKCS #1 or PKCS #8 RSA private key.
func ParseSigner(pemData []byte, keyID string) (*Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errNoPEMBlock
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewSigner(key, keyID), nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errNotRSAKey
	}

	return NewSigner(key, keyID), nil
}

// NewSigner wraps an already parsed key.
func NewSigner(key *rsa.PrivateKey, keyID string) *Signer {
	return &Signer{
		key:   key,
		keyID: keyID,
	}
}

// KeyID returns the identifier reported in signatures.
func (s *Signer) KeyID() string {
	return s.keyID
}

// Sign signs data and renders the expo-signature header value,
// e.g. sig="...", keyid="main".
func (s *Signer) Sign(data []byte) (string, error) {
	digest := sha256.Sum256(data)

	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}

	dict := httpsfv.NewDictionary()
	dict.Add(SignatureMember, httpsfv.NewItem(base64.StdEncoding.EncodeToString(signature)))
	dict.Add(KeyIDMember, httpsfv.NewItem(s.keyID))

	header, err := httpsfv.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("encode signature header: %w", err)
	}

	return header, nil
}

// Verifier checks signatures against a public key.
type Verifier struct {
	key *rsa.PublicKey
}

// LoadVerifier reads a PEM public key or certificate from path.
func LoadVerifier(path string) (*Verifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	return ParseVerifier(data)
}

// ParseVerifier accepts a PKIX public key, a PKCS #1 public key or an X.509 certificate.
func ParseVerifier(pemData []byte) (*Verifier, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errNoPEMBlock
	}

	var (
		parsed any
		err    error
	)

	switch block.Type {
	case "CERTIFICATE":
		var cert *x509.Certificate

		cert, err = x509.ParseCertificate(block.Bytes)
		if err == nil {
			parsed = cert.PublicKey
		}
	case "RSA PUBLIC KEY":
		parsed, err = x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		parsed, err = x509.ParsePKIXPublicKey(block.Bytes)
	}

	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errNotRSAKey
	}

	return NewVerifier(key), nil
}

// NewVerifier wraps an already parsed key.
func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// Verify checks header, an expo-signature value, against data and
// returns the reported key id.
func (v *Verifier) Verify(data []byte, header string) (string, error) {
	signature, keyID, err := ParseHeader(header)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(data)
	if err = rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], signature); err != nil {
		return "", fmt.Errorf("verify signature: %w", err)
	}

	return keyID, nil
}

// ParseHeader decodes an expo-signature value into the raw signature and key id.
func ParseHeader(header string) ([]byte, string, error) {
	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errMalformedSignature, err)
	}

	encoded, ok := memberString(dict, SignatureMember)
	if !ok {
		return nil, "", fmt.Errorf("%w: missing %s", errMalformedSignature, SignatureMember)
	}

	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errMalformedSignature, err)
	}

	keyID, _ := memberString(dict, KeyIDMember)

	return signature, keyID, nil
}

func memberString(dict *httpsfv.Dictionary, name string) (string, bool) {
	member, ok := dict.Get(name)
	if !ok {
		return "", false
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", false
	}

	value, ok := item.Value.(string)

	return value, ok
}
