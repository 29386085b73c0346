// Package access implements the single-owner authorization check guarding
// the administrative entry points of each engine.
package access

import (
	"errors"

	"github.com/atmx/ledger-engine/internal/model"
)

// ErrCallerNotOwner is returned for any caller other than the owner.
var ErrCallerNotOwner = errors.New("access: caller is not the owner")

// Owner holds the privileged principal of one engine.
type Owner struct {
	account model.Account
}

// NewOwner creates an owner check for account.
func NewOwner(account model.Account) Owner {
	return Owner{account: account}
}

// Account returns the owner account.
func (o Owner) Account() model.Account { return o.account }

// Check fails with ErrCallerNotOwner unless caller is the owner.
func (o Owner) Check(caller model.Account) error {
	if caller != o.account {
		return ErrCallerNotOwner
	}
	return nil
}
