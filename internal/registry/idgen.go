package registry

import (
	"crypto/rand"
	"math/big"
)

// generateIDLocked returns an unused 6-digit room ID. Caller holds the mutex.
func (reg *Registry) generateIDLocked() string {
	for {
		id := randomDigits(6)
		if _, taken := reg.rooms[id]; !taken {
			return id
		}
	}
}

func randomDigits(n int) string {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand only fails when the platform source is broken.
			digits[i] = '0'
			continue
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}

// validAccessCode accepts exactly six ASCII digits.
func validAccessCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
