package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"tg-reviews-api/internal/domain"
)

type recordingReporter struct {
	messages []string
}

func (r *recordingReporter) CaptureException(_ context.Context, err error, _ map[string]any) {
	r.messages = append(r.messages, err.Error())
}

func (r *recordingReporter) CaptureMessage(_ context.Context, msg string, _ domain.Severity, _ map[string]any) {
	r.messages = append(r.messages, msg)
}

const testToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

func validPayload(t *testing.T, v *Verifier, authDate int64) domain.AuthPayload {
	t.Helper()
	p := domain.AuthPayload{
		ID:        42,
		FirstName: "Иван",
		Username:  "ivan",
		PhotoURL:  "https://t.me/i/userpic/320/ivan.jpg",
		AuthDate:  authDate,
	}
	p.Hash = v.Sign(p)
	return p
}

func newValidator(t *testing.T, ttl time.Duration) (*Validator, *Verifier, *recordingReporter) {
	t.Helper()
	v, err := NewVerifier(testToken)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	rep := &recordingReporter{}
	return NewValidator(v, rep, ttl), v, rep
}

func TestVerifyRoundTrip(t *testing.T) {
	validator, verifier, _ := newValidator(t, 24*time.Hour)
	p := validPayload(t, verifier, time.Now().Unix())
	got, err := validator.Validate(context.Background(), p)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("ожидали id %d, получили %d", p.ID, got.ID)
	}
}

func TestVerifyRejectsMutatedFields(t *testing.T) {
	validator, verifier, _ := newValidator(t, 24*time.Hour)
	now := time.Now().Unix()

	mutations := map[string]func(*domain.AuthPayload){
		"id":         func(p *domain.AuthPayload) { p.ID = 43 },
		"first_name": func(p *domain.AuthPayload) { p.FirstName = "Пётр" },
		"username":   func(p *domain.AuthPayload) { p.Username = "petr" },
		"photo_url":  func(p *domain.AuthPayload) { p.PhotoURL = "https://t.me/i/userpic/320/petr.jpg" },
		"auth_date":  func(p *domain.AuthPayload) { p.AuthDate = now - 10 },
	}
	for field, mutate := range mutations {
		p := validPayload(t, verifier, now)
		mutate(&p)
		if _, err := validator.Validate(context.Background(), p); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("поле %s: ожидали ErrInvalidSignature, получили %v", field, err)
		}
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	validator, _, _ := newValidator(t, 24*time.Hour)
	other, _ := NewVerifier("999999:another-token")
	p := validPayload(t, other, time.Now().Unix())
	if _, err := validator.Validate(context.Background(), p); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("ожидали ErrInvalidSignature, получили %v", err)
	}
}

func TestValidateExpiredEvenWithGoodSignature(t *testing.T) {
	validator, verifier, _ := newValidator(t, time.Hour)
	p := validPayload(t, verifier, time.Now().Add(-2*time.Hour).Unix())
	if _, err := validator.Validate(context.Background(), p); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("ожидали ErrAuthExpired, получили %v", err)
	}
}

func TestValidateSchema(t *testing.T) {
	validator, verifier, rep := newValidator(t, 24*time.Hour)
	now := time.Now().Unix()

	cases := map[string]domain.AuthPayload{
		"id":         {FirstName: "Иван", AuthDate: now, Hash: verifier.Sign(domain.AuthPayload{})},
		"first_name": {ID: 1, AuthDate: now, Hash: verifier.Sign(domain.AuthPayload{})},
		"hash":       {ID: 1, FirstName: "Иван", AuthDate: now, Hash: "короткий"},
		"photo_url":  {ID: 1, FirstName: "Иван", AuthDate: now, PhotoURL: "не-url", Hash: verifier.Sign(domain.AuthPayload{})},
	}
	for field, p := range cases {
		if _, err := validator.Validate(context.Background(), p); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("поле %s: ожидали ErrInvalidInput, получили %v", field, err)
		}
	}
	if len(rep.messages) != len(cases) {
		t.Fatalf("ожидали %d отчётов, получили %d", len(cases), len(rep.messages))
	}
}

func TestDecodePayloadUnwrapsUserEnvelope(t *testing.T) {
	body := []byte(`{"user":{"id":7,"first_name":"Иван","auth_date":100,"hash":"aa"}}`)
	p, err := DecodePayload(body)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if p.ID != 7 || p.FirstName != "Иван" {
		t.Fatalf("обёртка user не развёрнута: %+v", p)
	}

	flat := []byte(`{"id":8,"first_name":"Пётр","auth_date":100,"hash":"bb"}`)
	p, err = DecodePayload(flat)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if p.ID != 8 {
		t.Fatalf("плоское тело разобрано неверно: %+v", p)
	}
}

func TestCheckStringSortedAndOmitsEmpty(t *testing.T) {
	p := domain.AuthPayload{ID: 1, FirstName: "Иван", AuthDate: 100}
	got := CheckString(p)
	want := "auth_date=100\nfirst_name=Иван\nid=1"
	if got != want {
		t.Fatalf("ожидали %q, получили %q", want, got)
	}
}
