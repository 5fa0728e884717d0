package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-api-accounts/internal/pkg/otp"
)

const (
	DefaultTTL       = 300 * time.Second
	DefaultKeyPrefix = "confirm_code:"
)

// ErrAtomicUnsupported is returned by NewService when atomic consumption is
// requested on a store without CompareAndDelete.
var ErrAtomicUnsupported = errors.New("code store does not support compare-and-delete")

type Options struct {
	TTL       time.Duration
	KeyPrefix string
	// Atomic selects compare-and-delete consumption. When false the service
	// falls back to get, compare, get-and-delete, compare.
	Atomic bool
	// Generate overrides the code generator. Defaults to otp.Generate.
	Generate func() (string, error)
}

// Service issues confirmation codes and consumes them exactly once.
type Service struct {
	store    CodeStore
	cas      ConditionalDeleter
	ttl      time.Duration
	prefix   string
	generate func() (string, error)
}

func NewService(store CodeStore, opts Options) (*Service, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Generate == nil {
		opts.Generate = otp.Generate
	}
	s := &Service{store: store, ttl: opts.TTL, prefix: opts.KeyPrefix, generate: opts.Generate}
	if opts.Atomic {
		cas, ok := store.(ConditionalDeleter)
		if !ok {
			return nil, ErrAtomicUnsupported
		}
		s.cas = cas
	}
	return s, nil
}

// Key returns the store key holding the live code for userID.
func (s *Service) Key(userID string) string {
	return s.prefix + userID
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Issue generates a fresh code for userID and stores it, replacing any code
// issued earlier.
func (s *Service) Issue(ctx context.Context, userID string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, s.Key(userID), code, s.ttl); err != nil {
		return "", fmt.Errorf("issue confirmation code: %w", err)
	}
	return code, nil
}

// VerifyAndConsume reports whether candidate matches the live code for userID.
// A match deletes the code, so at most one caller observes true. A mismatch
// leaves the stored code and its TTL untouched.
func (s *Service) VerifyAndConsume(ctx context.Context, userID, candidate string) (bool, error) {
	if candidate == "" {
		return false, nil
	}
	key := s.Key(userID)
	if s.cas != nil {
		ok, err := s.cas.CompareAndDelete(ctx, key, candidate)
		if err != nil {
			return false, fmt.Errorf("consume confirmation code: %w", err)
		}
		return ok, nil
	}
	return s.consumeBestEffort(ctx, key, candidate)
}

// consumeBestEffort relies on GetAndDelete being atomic to rule out a double
// success. A code reissued between the two reads is burned and the caller
// sees false.
func (s *Service) consumeBestEffort(ctx context.Context, key, candidate string) (bool, error) {
	stored, found, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read confirmation code: %w", err)
	}
	if !found || stored != candidate {
		return false, nil
	}
	taken, found, err := s.store.GetAndDelete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("consume confirmation code: %w", err)
	}
	return found && taken == candidate, nil
}

// Pending reports whether userID has a live code.
func (s *Service) Pending(ctx context.Context, userID string) (bool, error) {
	return s.store.Exists(ctx, s.Key(userID))
}
