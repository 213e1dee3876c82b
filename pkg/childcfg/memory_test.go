package childcfg

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func init() {
	hashCost = bcrypt.MinCost
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Validator{})

	if cfg, err := s.FetchChildConfiguration(ctx); err != nil || cfg != nil {
		t.Fatalf("expected no configuration, got %v %v", cfg, err)
	}
	cfg, err := s.CreateUser(ctx, 7, "1234", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cfg.ChildAge != 7 || cfg.VoiceID != DefaultVoice {
		t.Fatalf("unexpected configuration %+v", cfg)
	}
	if _, err := s.CreateUser(ctx, 8, "9999", DefaultVoice); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if ok, _ := s.AuthenticatePIN(ctx, "1234"); !ok {
		t.Fatalf("expected pin to match")
	}
	if ok, _ := s.AuthenticatePIN(ctx, "4321"); ok {
		t.Fatalf("expected wrong pin to fail")
	}
	if ok, _ := s.AuthenticatePIN(ctx, "12a4"); ok {
		t.Fatalf("expected malformed pin to fail")
	}

	age := 9
	updated, err := s.UpdateConfiguration(ctx, "1234", Update{ChildAge: &age})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ChildAge != 9 || updated.VoiceID != DefaultVoice {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := s.UpdateConfiguration(ctx, "0000", Update{ChildAge: &age}); !errors.Is(err, ErrBadPIN) {
		t.Fatalf("expected ErrBadPIN, got %v", err)
	}

	if err := s.DeleteUser(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if cfg, _ := s.FetchChildConfiguration(ctx); cfg != nil {
		t.Fatalf("expected configuration removed")
	}
	if ok, _ := s.AuthenticatePIN(ctx, "1234"); ok {
		t.Fatalf("pin must not match after delete")
	}
}

func TestCreateUserValidation(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		age   int
		pin   string
		voice string
	}{
		{"too young", 4, "1234", DefaultVoice},
		{"too old", 11, "1234", DefaultVoice},
		{"short pin", 7, "123", DefaultVoice},
		{"letters in pin", 7, "12ab", DefaultVoice},
		{"unknown voice", 7, "1234", "en-US-Standard-A"},
	}
	for _, tc := range cases {
		s := NewMemoryStore(Validator{})
		if _, err := s.CreateUser(ctx, tc.age, tc.pin, tc.voice); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
	for _, age := range []int{MinAge, MaxAge} {
		if _, err := NewMemoryStore(Validator{}).CreateUser(ctx, age, "0000", DefaultVoice); err != nil {
			t.Fatalf("age %d should be accepted: %v", age, err)
		}
	}
}

func TestUpdateRequiresAField(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Validator{})
	if _, err := s.CreateUser(ctx, 6, "1111", DefaultVoice); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.UpdateConfiguration(ctx, "1111", Update{}); !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
	bad := "xx-XX"
	if _, err := s.UpdateConfiguration(ctx, "1111", Update{VoiceID: &bad}); err == nil {
		t.Fatalf("expected voice validation error")
	}
}

func TestUpdateWithoutUser(t *testing.T) {
	voice := "de-DE-Standard-C"
	_, err := NewMemoryStore(Validator{}).UpdateConfiguration(context.Background(), "1234", Update{VoiceID: &voice})
	if !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
}

func TestValidatorCustomVoices(t *testing.T) {
	v := Validator{Voices: []string{"narrator"}}
	if err := v.Voice("narrator"); err != nil {
		t.Fatalf("custom voice rejected: %v", err)
	}
	if err := v.Voice(DefaultVoice); err == nil {
		t.Fatalf("default voice should not be accepted by a custom list")
	}
}
