package reconcile

import (
	"encoding/binary"
	"fmt"

	"github.com/msp-docs/psa-sync/internal/domain"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ContentHash fingerprints the change-relevant fields of a record and the
// internal ids its references resolved to.  Each field is length prefixed so
// that ("ab", "c") and ("a", "bc") differ.
func ContentHash(rec domain.CanonicalRecord, refs domain.RecordReferences) string {
	d := xxhash.New()

	var prefix [binary.MaxVarintLen64]byte

	write := func(field string) {
		n := binary.PutUvarint(prefix[:], uint64(len(field)))
		d.Write(prefix[:n])
		d.WriteString(field)
	}

	write(string(rec.EntityType()))
	for _, field := range rec.HashFields() {
		write(field)
	}
	write(refField(refs.CompanyID))
	write(refField(refs.ContactID))

	return fmt.Sprintf("%016x", d.Sum64())
}

func refField(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
