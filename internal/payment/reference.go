package payment

import (
	"strings"

	"github.com/google/uuid"
)

const DefaultReferencePrefix = "GR"

// ReferenceGenerator mints the externalReference attached to every charge,
// e.g. GR-1A2B3C4D.
type ReferenceGenerator struct {
	prefix string
	newID  func() uuid.UUID
}

func NewReferenceGenerator(prefix string) *ReferenceGenerator {
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	return &ReferenceGenerator{prefix: prefix, newID: uuid.New}
}

func (g *ReferenceGenerator) New() string {
	return g.prefix + "-" + strings.ToUpper(g.newID().String()[:8])
}

// Owns reports whether ref was minted with this generator's prefix.
func (g *ReferenceGenerator) Owns(ref string) bool {
	return strings.HasPrefix(ref, g.prefix+"-") && len(ref) == len(g.prefix)+9
}
