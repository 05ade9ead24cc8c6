// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jeranaias/veil/internal/passcode"
	"github.com/jeranaias/veil/internal/vault"
)

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of Verify. A wrong code is Invalid, never an error.
type Result int

const (
	// Invalid means the code matched neither credential.
	Invalid Result = iota
	// Real means the code matched the real passcode.
	Real
	// Duress means the code matched the duress code.
	Duress
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Real:
		return "real"
	case Duress:
		return "duress"
	default:
		return "invalid"
	}
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidLength is returned when a code is not exactly the configured
	// number of ASCII digits.
	ErrInvalidLength = errors.New("passcode must be exactly the configured number of digits")

	// ErrRealCredentialMissing is returned when a duress code is set before a
	// real passcode exists.
	ErrRealCredentialMissing = errors.New("a passcode must be set before a duress code")

	// ErrCodeCollision is returned when the duress code would equal the real
	// passcode, or a new real passcode would equal the duress code.
	ErrCodeCollision = errors.New("duress code and passcode must differ")

	// ErrStorageFailure wraps any failure of the sealed vault.
	ErrStorageFailure = errors.New("credential storage unavailable")
)

// =============================================================================
// STORE
// =============================================================================

// Backend persists credential records. *vault.Vault implements it.
type Backend interface {
	Load() (*vault.State, error)
	Update(fn func(*vault.State) error) error
}

// Store holds the real and duress credentials and verifies candidates
// against both in constant shape.
type Store struct {
	mu      sync.Mutex
	backend Backend
	length  int
	kdf     string
	params  vault.KDFParams
	floor   time.Duration
	now     func() time.Time

	// Cached copies of the persisted records.
	real   *vault.CredentialRecord
	duress *vault.CredentialRecord
	dummy  *vault.CredentialRecord

	derive func(code []byte, rec *vault.CredentialRecord) []byte
}

// Option configures a Store.
type Option func(*Store)

// WithLength sets the required passcode length.
func WithLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.length = n
		}
	}
}

// WithKDF selects the KDF and its cost for new credentials.
// Existing credentials keep the parameters they were created with.
func WithKDF(name string, params vault.KDFParams) Option {
	return func(s *Store) {
		if kdf, err := NormalizeKDF(name); err == nil {
			s.kdf = kdf
		}
		s.params = params
	}
}

// WithVerifyFloor pads every Verify to at least d.
func WithVerifyFloor(d time.Duration) Option {
	return func(s *Store) {
		s.floor = d
	}
}

// WithClock overrides the time source used for CreatedAt and padding.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore loads credentials from backend. It creates and persists the
// dummy record on first use, or when the configured KDF changed.
func NewStore(backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		length:  passcode.DefaultLength,
		kdf:     KDFArgon2id,
		params:  DefaultParams,
		now:     time.Now,
		derive:  deriveKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.kdf == KDFPBKDF2 && s.params.Iterations == 0 {
		s.params = vault.KDFParams{Iterations: DefaultPBKDF2Iterations}
	}

	st, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	s.real = st.Real.Clone()
	s.duress = st.Duress.Clone()
	s.dummy = st.Dummy.Clone()

	if s.dummy == nil || s.dummy.KDF != s.kdf || s.dummy.Params != s.params {
		dummy, err := s.newDummy()
		if err != nil {
			return nil, err
		}
		if err := backend.Update(func(st *vault.State) error {
			st.Dummy = dummy.Clone()
			return nil
		}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		s.dummy.Zero()
		s.dummy = dummy
	}
	return s, nil
}

// Length returns the required number of digits.
func (s *Store) Length() int { return s.length }

// IsPasscodeSet reports whether a real passcode exists.
func (s *Store) IsPasscodeSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.real != nil
}

// HasDuress reports whether a duress code exists.
func (s *Store) HasDuress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duress != nil
}

// =============================================================================
// VERIFY
// =============================================================================

// Verify checks code against both credentials.
//
// SECURITY: Both hashes are always derived with equal cost. When a slot is
// empty the dummy record stands in. Match bits are combined with
// constant-time selection, and a candidate of the wrong length or with
// non-digits still pays for both derivations before being masked to Invalid.
// Nothing here logs.
func (s *Store) Verify(code *passcode.Code) (Result, error) {
	start := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dummy == nil {
		return Invalid, ErrStorageFailure
	}

	candidate := code.Bytes()
	valid := subtle.ConstantTimeEq(int32(len(candidate)), int32(s.length)) & code.DigitMask()

	realRec, realSet := s.slot(s.real)
	duressRec, duressSet := s.slot(s.duress)

	realHash := s.derive(candidate, realRec)
	duressHash := s.derive(candidate, duressRec)

	realMatch := subtle.ConstantTimeCompare(realHash, realRec.Hash) & realSet & valid
	duressMatch := subtle.ConstantTimeCompare(duressHash, duressRec.Hash) & duressSet & valid

	vault.ZeroBytes(realHash)
	vault.ZeroBytes(duressHash)

	result := subtle.ConstantTimeSelect(realMatch, int(Real),
		subtle.ConstantTimeSelect(duressMatch, int(Duress), int(Invalid)))

	s.pad(start)
	return Result(result), nil
}

// slot returns rec, or the dummy when rec is unset, plus a 1/0 set bit.
func (s *Store) slot(rec *vault.CredentialRecord) (*vault.CredentialRecord, int) {
	if rec == nil {
		return s.dummy, 0
	}
	return rec, 1
}

func (s *Store) pad(start time.Time) {
	if s.floor <= 0 {
		return
	}
	if d := s.floor - s.now().Sub(start); d > 0 {
		time.Sleep(d)
	}
}

// matches reports whether code verifies against rec. Used only on the setup
// path, never at the gate.
func (s *Store) matches(code []byte, rec *vault.CredentialRecord) bool {
	if rec == nil {
		return false
	}
	h := s.derive(code, rec)
	defer vault.ZeroBytes(h)
	return subtle.ConstantTimeCompare(h, rec.Hash) == 1
}

// =============================================================================
// SET / CLEAR
// =============================================================================

// SetReal stores code as the real passcode, replacing any existing one
// atomically.
func (s *Store) SetReal(code *passcode.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkShape(code); err != nil {
		return err
	}
	if s.matches(code.Bytes(), s.duress) {
		return ErrCodeCollision
	}
	rec, err := s.newRecord(code.Bytes())
	if err != nil {
		return err
	}
	if err := s.backend.Update(func(st *vault.State) error {
		st.Real.Zero()
		st.Real = rec.Clone()
		return nil
	}); err != nil {
		rec.Zero()
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	s.real.Zero()
	s.real = rec
	return nil
}

// SetDuress stores code as the duress code.
func (s *Store) SetDuress(code *passcode.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkShape(code); err != nil {
		return err
	}
	if s.real == nil {
		return ErrRealCredentialMissing
	}
	if s.matches(code.Bytes(), s.real) {
		return ErrCodeCollision
	}
	rec, err := s.newRecord(code.Bytes())
	if err != nil {
		return err
	}
	if err := s.backend.Update(func(st *vault.State) error {
		if st.Real == nil {
			return ErrRealCredentialMissing
		}
		st.Duress.Zero()
		st.Duress = rec.Clone()
		return nil
	}); err != nil {
		rec.Zero()
		if errors.Is(err, ErrRealCredentialMissing) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	s.duress.Zero()
	s.duress = rec
	return nil
}

// Clear removes both credentials. It is the only way IsPasscodeSet becomes
// false.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Update(func(st *vault.State) error {
		st.ZeroCredentials()
		return nil
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	s.real.Zero()
	s.duress.Zero()
	s.real, s.duress = nil, nil
	return nil
}

// ClearDuress removes only the duress code.
func (s *Store) ClearDuress() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Update(func(st *vault.State) error {
		st.Duress.Zero()
		st.Duress = nil
		return nil
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	s.duress.Zero()
	s.duress = nil
	return nil
}

// checkShape rejects codes that are not exactly length ASCII digits.
func (s *Store) checkShape(code *passcode.Code) error {
	if code.Len() != s.length || !code.IsDigits() {
		return ErrInvalidLength
	}
	return nil
}

func (s *Store) newRecord(code []byte) (*vault.CredentialRecord, error) {
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	rec := &vault.CredentialRecord{
		Salt:      salt,
		CreatedAt: s.now().Unix(),
		Length:    s.length,
		KDF:       s.kdf,
		Params:    s.params,
	}
	rec.Hash = s.derive(code, rec)
	return rec, nil
}

// newDummy hashes a random secret nobody knows. It only ever absorbs the
// cost of comparing against an empty slot.
func (s *Store) newDummy() (*vault.CredentialRecord, error) {
	secret := make([]byte, HashSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("failed to generate dummy secret: %w", err)
	}
	defer vault.ZeroBytes(secret)
	return s.newRecord(secret)
}
