package utility

import (
	"github.com/google/uuid"
)

type RunID = uuid.UUID

var runNamespace = uuid.MustParse("6f1c2a4e-5b0d-4c1e-9a57-3e2b8d9f0a11")

// NewRunID derives a stable identifier from a configuration fingerprint so that
// identical runs share an identifier.
func NewRunID(fingerprint []byte) RunID {
	return uuid.NewSHA1(runNamespace, fingerprint)
}

// NewSweepID identifies a batch of runs, which is not required to be reproducible.
func NewSweepID() RunID {
	return uuid.Must(uuid.NewV7())
}
