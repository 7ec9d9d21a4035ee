package handlers

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/healpoint/healpoint/libs/auth"
)

var ErrRotationUnsupported = errors.New("rotation not supported")

type TokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	JWKS() []auth.JWK
	CanRotate() bool
	SetActiveKid(kid string) error
	RotateKey() string
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) TokenSigner {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWKS() []auth.JWK { return nil }
func (s *hs256Signer) CanRotate() bool { return false }
func (s *hs256Signer) SetActiveKid(_ string) error { return ErrRotationUnsupported }
func (s *hs256Signer) RotateKey() string { return "" }

type rsaKey struct {
	kid string
	key *rsa.PrivateKey
}

func (k rsaKey) sign(claims auth.Claims) (string, error) {
	return auth.SignRS256(claims, k.key, k.kid)
}

func (k rsaKey) verify(token string) (*auth.Claims, error) {
	return auth.VerifyRS256(token, &k.key.PublicKey)
}

type rs256Signer struct {
	rsaKey
}

func NewRS256Signer(pemBytes []byte, kid string) (TokenSigner, error) {
	key, err := parseRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		kid = keyIDFromPublicKey(&key.PublicKey)
	}
	return &rs256Signer{rsaKey{kid: kid, key: key}}, nil
}

func (s *rs256Signer) Sign(claims auth.Claims) (string, error) { return s.sign(claims) }
func (s *rs256Signer) Verify(token string) (*auth.Claims, error) { return s.verify(token) }

func (s *rs256Signer) JWKS() []auth.JWK {
	return []auth.JWK{auth.PublicJWK(s.kid, &s.key.PublicKey)}
}

func (s *rs256Signer) CanRotate() bool { return false }
func (s *rs256Signer) SetActiveKid(_ string) error { return ErrRotationUnsupported }
func (s *rs256Signer) RotateKey() string { return "" }

// RotatingSigner signs with the active key and verifies with any key in the set.
type RotatingSigner struct {
	mu        sync.RWMutex
	activeKid string
	keys      map[string]rsaKey
	rotateKey string
}

// ParseRS256KeySet reads concatenated PEM private keys, keyed by derived kid.
func ParseRS256KeySet(pemBlobs string) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	for _, block := range splitPEMBlocks(pemBlobs) {
		key, err := parseRSAPrivateKey([]byte(block))
		if err != nil {
			return nil, err
		}
		keys[keyIDFromPublicKey(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

func NewRotatingRS256Signer(keys map[string]*rsa.PrivateKey, activeKid, rotateKey string) (*RotatingSigner, error) {
	s := &RotatingSigner{keys: map[string]rsaKey{}, rotateKey: rotateKey}
	for kid, key := range keys {
		if kid == "" || key == nil {
			continue
		}
		s.keys[kid] = rsaKey{kid: kid, key: key}
	}
	if len(s.keys) == 0 {
		return nil, errors.New("no keys provided")
	}
	if activeKid == "" {
		activeKid = s.sortedKids()[0]
	}
	if _, ok := s.keys[activeKid]; !ok {
		return nil, errors.New("active kid not found")
	}
	s.activeKid = activeKid
	return s, nil
}

func (s *RotatingSigner) Sign(claims auth.Claims) (string, error) {
	s.mu.RLock()
	key := s.keys[s.activeKid]
	s.mu.RUnlock()
	return key.sign(claims)
}

func (s *RotatingSigner) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	key, ok := s.keys[header.Kid]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return key.verify(token)
}

// JWKS lists every key so tokens signed before a rotation stay verifiable.
func (s *RotatingSigner) JWKS() []auth.JWK {
	out := make([]auth.JWK, 0, len(s.keys))
	for _, kid := range s.sortedKids() {
		out = append(out, auth.PublicJWK(kid, &s.keys[kid].key.PublicKey))
	}
	return out
}

func (s *RotatingSigner) CanRotate() bool { return s.rotateKey != "" }

func (s *RotatingSigner) SetActiveKid(kid string) error {
	if _, ok := s.keys[kid]; !ok {
		return errors.New("unknown kid")
	}
	s.mu.Lock()
	s.activeKid = kid
	s.mu.Unlock()
	return nil
}

func (s *RotatingSigner) ActiveKid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeKid
}

func (s *RotatingSigner) RotateKey() string { return s.rotateKey }

func (s *RotatingSigner) sortedKids() []string {
	kids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if k, ok := key.(*rsa.PrivateKey); ok {
			return k, nil
		}
	}
	return nil, errors.New("unsupported private key")
}

func keyIDFromPublicKey(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

func splitPEMBlocks(raw string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "-----BEGIN ") {
			inBlock = true
			current.Reset()
		}
		if inBlock {
			current.WriteString(line)
			current.WriteString("\n")
		}
		if strings.HasPrefix(line, "-----END ") && inBlock {
			inBlock = false
			blocks = append(blocks, current.String())
		}
	}
	return blocks
}
