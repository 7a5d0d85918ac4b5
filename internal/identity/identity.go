// Package identity maps user-facing handles (addresses, emails, phone
// numbers) to ledger addresses.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnresolved = errors.New("identity: handle does not resolve to an address")

// Resolver turns a handle into a lowercase 0x address.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (string, error)
}

// Passthrough accepts only handles that already are addresses.
type Passthrough struct{}

func (Passthrough) Resolve(_ context.Context, handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if !common.IsHexAddress(handle) {
		return "", ErrUnresolved
	}
	return strings.ToLower(common.HexToAddress(handle).Hex()), nil
}

// Directory resolves handles from a fixed table and falls back to
// Passthrough. Keys are matched case-insensitively.
type Directory struct {
	entries map[string]string
}

func NewDirectory(entries map[string]string) *Directory {
	d := &Directory{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		d.entries[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return d
}

func (d *Directory) Resolve(ctx context.Context, handle string) (string, error) {
	if addr, ok := d.entries[strings.ToLower(strings.TrimSpace(handle))]; ok {
		return Passthrough{}.Resolve(ctx, addr)
	}
	return Passthrough{}.Resolve(ctx, handle)
}
