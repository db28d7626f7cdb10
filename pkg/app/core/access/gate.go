// Package access holds the single admin principal that gates asset
// registration and fee withdrawal.
package access

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
)

// Gate is immutable after construction; there is no ownership transfer.
type Gate struct {
	admin common.Address
}

func NewGate(admin common.Address) *Gate {
	return &Gate{admin: admin}
}

// Admin returns the admin identity.
func (g *Gate) Admin() common.Address { return g.admin }

func (g *Gate) IsAdmin(caller common.Address) bool {
	return caller == g.admin
}

// Require fails with Unauthorized unless caller is the admin.
func (g *Gate) Require(caller common.Address) error {
	if !g.IsAdmin(caller) {
		return errcode.New(errcode.Unauthorized, "%s is not the admin", caller.Hex())
	}
	return nil
}
