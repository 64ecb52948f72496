// README: Pickup and drop verification codes: generation and single-use checks.
package booking

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"vrent/internal/types"
)

const codeDigits = 4

var codeSpace = big.NewInt(10000)

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// newCodes returns two independently drawn codes that differ from each other.
func newCodes() (Codes, error) {
	pickup, err := newCode()
	if err != nil {
		return Codes{}, err
	}
	drop, err := newCode()
	if err != nil {
		return Codes{}, err
	}
	for drop == pickup {
		if drop, err = newCode(); err != nil {
			return Codes{}, err
		}
	}
	return Codes{
		Pickup: VerificationCode{Code: pickup},
		Drop:   VerificationCode{Code: drop},
	}, nil
}

// check validates presented against c without consuming it.
func (c *VerificationCode) check(presented string) error {
	if c.Verified {
		return ErrCodeAlreadyUsed
	}
	if len(presented) != len(c.Code) || subtle.ConstantTimeCompare([]byte(presented), []byte(c.Code)) != 1 {
		return ErrInvalidCode
	}
	return nil
}

// consume marks the code used; it is persisted with the transition.
func (c *VerificationCode) consume(by types.ID, at time.Time) {
	c.Verified = true
	c.VerifiedBy = &by
	c.VerifiedAt = &at
}
