// Package nop provides a mirror adapter which does nothing. It registers
// the "nop://" scheme.
package nop

import (
	"net/url"

	"github.com/digineo/purged/mirror"
)

func init() {
	mirror.RegisterAdapter("nop", New)
}

type nop struct{}

func New(*url.URL) (mirror.Invalidator, error) {
	return nop{}, nil
}

func (nop) Invalidate(string) error { return nil }
func (nop) Flush() error            { return nil }
