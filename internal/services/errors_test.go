package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"accession/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrRemoteCall, "transfer", "approve", "approval rejected", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrRemoteCall) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transfer", "approve", "approval rejected"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want services.Kind
	}{
		{nil, services.KindUnknown},
		{services.Wrap(services.ErrValidation, "qa", "folder", "bad name", nil), services.KindValidation},
		{services.Wrap(services.ErrRemoteCall, "transfer", "start", "", errors.New("503")), services.KindRemoteCall},
		{fmt.Errorf("poll: %w", services.Wrap(services.ErrRemoteCall, "", "", "", services.ErrTimeout)), services.KindTimeout},
		{services.Wrap(services.ErrPersistence, "finalize", "save", "", nil), services.KindPersistence},
		{errors.New("plain"), services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestValidationErrorsAggregate(t *testing.T) {
	verrs := &services.ValidationErrors{Subject: "descriptive record /repositories/2/archival_objects/9"}
	if verrs.Err() != nil {
		t.Fatal("expected nil error when no problems recorded")
	}
	verrs.Add("missing title")
	verrs.Add("")
	verrs.Add("missing %s identifier", "local")

	err := verrs.Err()
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !errors.Is(err, services.ErrDataIntegrity) {
		t.Fatalf("expected data integrity marker, got %v", err)
	}
	if len(verrs.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %d", len(verrs.Problems))
	}
	if !strings.Contains(err.Error(), "missing title; missing local identifier") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
