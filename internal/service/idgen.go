package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// IDGenerator produces the opaque identifiers embedded in QR requests.
// Uniqueness is ultimately enforced by the store's primary key; the scheme
// only has to make collisions astronomically unlikely.
type IDGenerator interface {
	QRCodeID() string
	ReferenceNumber() string
}

type randomIDGenerator struct{}

func NewIDGenerator() IDGenerator {
	return randomIDGenerator{}
}

func (randomIDGenerator) QRCodeID() string {
	return fmt.Sprintf("QR%d%04d", time.Now().UnixMilli(), randomDigits(10000))
}

func (randomIDGenerator) ReferenceNumber() string {
	return fmt.Sprintf("REF%d%06d", time.Now().UnixMilli(), randomDigits(1000000))
}

func randomDigits(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		// crypto/rand failing means the platform is broken; fall back to the
		// clock rather than return a constant.
		return time.Now().UnixNano() % max
	}
	return n.Int64()
}
