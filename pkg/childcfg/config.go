// Package childcfg stores the single child configuration a Checky
// installation talks to: the child's age, the narrator voice and the hashed
// parent PIN.
package childcfg

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinAge = 5
	MaxAge = 10
	// DefaultVoice is used when onboarding does not pick one.
	DefaultVoice = "de-DE-Standard-A"
)

// DefaultVoices are the German voices offered to parents.
var DefaultVoices = []string{"de-DE-Standard-A", "de-DE-Standard-C", "de-DE-Standard-D"}

var (
	ErrUserExists = errors.New("childcfg: a child configuration already exists")
	ErrNoUser     = errors.New("childcfg: no child configuration")
	ErrBadPIN     = errors.New("childcfg: pin does not match")
	ErrNoChanges  = errors.New("childcfg: nothing to update")
)

// Configuration is what a session needs to know about the child. The PIN
// hash never leaves the store.
type Configuration struct {
	ID        int64
	ChildAge  int
	VoiceID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fetcher returns the configuration, or nil when onboarding has not happened.
type Fetcher interface {
	FetchChildConfiguration(ctx context.Context) (*Configuration, error)
}

// Authenticator checks a parent PIN. A malformed PIN or a missing
// configuration is reported as false, not as an error.
type Authenticator interface {
	AuthenticatePIN(ctx context.Context, pin string) (bool, error)
}

// Update lists the fields to change; nil fields stay as they are.
type Update struct {
	ChildAge *int
	VoiceID  *string
}

// Store is the complete configuration store. Implementations are safe for
// concurrent use.
type Store interface {
	Fetcher
	Authenticator
	CreateUser(ctx context.Context, age int, pin, voiceID string) (*Configuration, error)
	UpdateConfiguration(ctx context.Context, pin string, u Update) (*Configuration, error)
	DeleteUser(ctx context.Context) error
}

// Validator holds the rules shared by every store.
type Validator struct {
	Voices []string
}

func (v Validator) voices() []string {
	if len(v.Voices) == 0 {
		return DefaultVoices
	}
	return v.Voices
}

func (v Validator) Age(age int) error {
	if age < MinAge || age > MaxAge {
		return fmt.Errorf("childcfg: age %d outside %d..%d", age, MinAge, MaxAge)
	}
	return nil
}

func (v Validator) Voice(voice string) error {
	if !slices.Contains(v.voices(), voice) {
		return fmt.Errorf("childcfg: unsupported voice %q", voice)
	}
	return nil
}

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

func (v Validator) create(age int, pin, voice string) error {
	if err := v.Age(age); err != nil {
		return err
	}
	if !ValidPIN(pin) {
		return errors.New("childcfg: pin must be 4 digits")
	}
	return v.Voice(voice)
}

func (v Validator) update(u Update) error {
	if u.ChildAge == nil && u.VoiceID == nil {
		return ErrNoChanges
	}
	if u.ChildAge != nil {
		if err := v.Age(*u.ChildAge); err != nil {
			return err
		}
	}
	if u.VoiceID != nil {
		if err := v.Voice(*u.VoiceID); err != nil {
			return err
		}
	}
	return nil
}

// hashCost is lowered by tests.
var hashCost = bcrypt.DefaultCost

func hashPIN(pin string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), hashCost)
	if err != nil {
		return "", fmt.Errorf("childcfg: hash pin: %w", err)
	}
	return string(b), nil
}

func checkPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
