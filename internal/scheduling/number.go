package scheduling

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Ambiguous characters (0/O, 1/I/L) are left out so numbers survive being
// read over the phone.
const numberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// newAppointmentNumber builds a human-readable, globally unique-ish number
// like CONS-20260831-K7KM3Q. Uniqueness is enforced by the DB index; the
// caller retries on collision.
func newAppointmentNumber(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = numberAlphabet[rand.IntN(len(numberAlphabet))]
	}
	return fmt.Sprintf("CONS-%s-%s", now.UTC().Format("20060102"), suffix)
}
