package domain

import (
	"errors"
	"testing"
	"time"
)

func TestQuota_ValidateAcceptsPositiveValues(t *testing.T) {
	q := Quota{MaxRequests: 3, Window: 5 * time.Minute}
	if err := q.Validate(); err != nil {
		t.Fatalf("expected valid quota, got %v", err)
	}
}

func TestQuota_ValidateRejectsNonPositiveValues(t *testing.T) {
	cases := []Quota{
		{MaxRequests: 0, Window: time.Minute},
		{MaxRequests: -1, Window: time.Minute},
		{MaxRequests: 3, Window: 0},
		{MaxRequests: 3, Window: -time.Second},
	}
	for _, q := range cases {
		err := q.Validate()
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("expected ErrInvalidConfiguration for %+v, got %v", q, err)
		}
	}
}

func TestKey_IsUnknown(t *testing.T) {
	cases := map[Key]bool{
		"unknown":          true,
		"contact:unknown":  true,
		"contact:1.2.3.4":  false,
		"unknown-device":   false,
		"booking:10.0.0.1": false,
	}
	for k, want := range cases {
		if got := k.IsUnknown(); got != want {
			t.Fatalf("%q: expected %v, got %v", k, want, got)
		}
	}
}
