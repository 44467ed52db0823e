package services

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/phillip/iinsaf-marketplace-go/store"
)

// codeGenerator returns a human-readable conference code for prefix.
type codeGenerator func(prefix string) string

func newCodeGenerator() codeGenerator {
	return func(prefix string) string {
		return fmt.Sprintf("%s%05d", prefix, rand.IntN(100000))
	}
}

// withUniqueCode calls insert with fresh codes until one is not taken or
// the attempt budget runs out.
func (s *Service) withUniqueCode(prefix string, insert func(code string) error) error {
	for attempt := 0; attempt < s.opts.ConferenceCodeAttempts; attempt++ {
		err := insert(s.codes(prefix))
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return err
		}
	}
	return fmt.Errorf("%w: could not generate a unique %s conference code", ErrConflict, prefix)
}
