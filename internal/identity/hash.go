package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"foodgraph/pkg/ontology"
)

// hashIDLen is the hash prefix length embedded in canonical node ids. The
// full digest is kept on the node.
const hashIDLen = 12

// Serialize renders (taxon, part, ordered identity steps) in the single
// canonical form that is hashed. Params are emitted in sorted key order.
func Serialize(taxon, part string, steps []ontology.IdentityStep) string {
	var b strings.Builder
	b.WriteString(taxon)
	b.WriteByte('|')
	b.WriteString(part)
	for _, s := range steps {
		b.WriteByte('|')
		b.WriteString(s.Transform)
		if len(s.Params) == 0 {
			continue
		}
		keys := make([]string, 0, len(s.Params))
		for k := range s.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(s.Params[k])
		}
		b.WriteByte('}')
	}
	return b.String()
}

// Hash computes the stable content hash of the identity-reduced path.
func Hash(taxon, part string, steps []ontology.IdentityStep) string {
	sum := sha256.Sum256([]byte(Serialize(taxon, part, steps)))
	return hex.EncodeToString(sum[:])
}

// NodeID builds the canonical id taxon-slug:part-slug:family:hash.
func NodeID(taxon, part, family, hash string) string {
	short := hash
	if len(short) > hashIDLen {
		short = short[:hashIDLen]
	}
	return strings.Join([]string{taxonSlug(taxon), slug(part), slug(family), short}, ":")
}

// taxonSlug keeps only the terminal lineage segment; the full lineage lives
// on the node and in the closure tables.
func taxonSlug(taxon string) string {
	if i := strings.LastIndexByte(taxon, ':'); i >= 0 {
		return slug(taxon[i+1:])
	}
	return slug(taxon)
}

func slug(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
