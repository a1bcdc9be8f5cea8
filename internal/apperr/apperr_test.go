package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{Validation("bad input"), ErrValidation},
		{NotFound("missing"), ErrNotFound},
		{Authorization("forbidden"), ErrAuthorization},
		{Conflict("taken"), ErrConflict},
		{Storage("load conversation", errors.New("conn refused")), ErrStorage},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.kind) {
			t.Fatalf("%v does not match %v", tc.err, tc.kind)
		}
		for _, other := range []error{ErrValidation, ErrNotFound, ErrAuthorization, ErrConflict, ErrStorage} {
			if other != tc.kind && errors.Is(tc.err, other) {
				t.Fatalf("%v matches %v too", tc.err, other)
			}
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("svc.SendMessage: %w", Authorization("not a participant"))
	if !errors.Is(err, ErrAuthorization) {
		t.Fatalf("wrapped kind lost: %v", err)
	}
	if Message(err) != "svc.SendMessage: not a participant" {
		t.Fatalf("message = %q", Message(err))
	}
}

func TestMessage(t *testing.T) {
	if Message(nil) != "" {
		t.Fatalf("nil message not empty")
	}
	if Message(Validation("name is required")) != "name is required" {
		t.Fatalf("message = %q", Message(Validation("name is required")))
	}
}
