package registry

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// ErrIntegrity indicates archive bytes that do not match the declared
// integrity or shasum
var ErrIntegrity = errors.New("integrity mismatch")

// sriAlgorithms in order of preference.
var sriAlgorithms = []struct {
	name string
	new  func() hash.Hash
}{
	{"sha512", sha512.New},
	{"sha384", sha512.New384},
	{"sha256", sha256.New},
	{"sha1", sha1.New},
}

// VerifyIntegrity checks data against dist.Integrity, a Subresource
// Integrity string, using its strongest supported hash. Without a usable
// integrity, dist.Shasum (hex sha1) is checked. With neither there is
// nothing to verify.
func VerifyIntegrity(data []byte, dist Dist) error {
	if dist.Integrity != "" {
		hashes := parseSRI(dist.Integrity)
		for _, alg := range sriAlgorithms {
			want, ok := hashes[alg.name]
			if !ok {
				continue
			}
			h := alg.new()
			h.Write(data)
			if subtle.ConstantTimeCompare(h.Sum(nil), want) != 1 {
				return fmt.Errorf("%w: %s digest differs from %s", ErrIntegrity, alg.name, dist.Integrity)
			}
			return nil
		}
	}

	if dist.Shasum != "" {
		sum := sha1.Sum(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), dist.Shasum) {
			return fmt.Errorf("%w: shasum %s", ErrIntegrity, dist.Shasum)
		}
	}
	return nil
}

// parseSRI decodes "alg-base64[?opts]" tokens. Unknown or malformed
// tokens are ignored.
func parseSRI(sri string) map[string][]byte {
	out := make(map[string][]byte)
	for _, token := range strings.Fields(sri) {
		alg, digest, ok := strings.Cut(token, "-")
		if !ok {
			continue
		}
		digest, _, _ = strings.Cut(digest, "?")
		raw, err := base64.StdEncoding.DecodeString(digest)
		if err != nil {
			continue
		}
		if _, seen := out[alg]; !seen {
			out[alg] = raw
		}
	}
	return out
}
