package domain

import (
	"errors"
	"testing"
)

func TestPartyRefValid(t *testing.T) {
	cases := []struct {
		name string
		ref  PartyRef
		want bool
	}{
		{"staff", PartyRef{Kind: PartyStaff, ID: "s1"}, true},
		{"teacher", PartyRef{Kind: PartyTeacher, ID: "t1"}, true},
		{"missing id", PartyRef{Kind: PartyStaff}, false},
		{"unknown kind", PartyRef{Kind: "robot", ID: "r1"}, false},
		{"zero", PartyRef{}, false},
	}
	for _, tc := range cases {
		if got := tc.ref.Valid(); got != tc.want {
			t.Errorf("%s: Valid() = %v, want %v", tc.name, got, tc.want)
		}
	}
	if !(PartyRef{}).IsZero() {
		t.Errorf("zero PartyRef should report IsZero")
	}
	if (PartyRef{Kind: PartyStaff, ID: "s1"}).IsZero() {
		t.Errorf("populated PartyRef should not report IsZero")
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var r Result
	if r.HasBlocking() {
		t.Fatalf("empty result should not block")
	}
	r.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	r.Merge(Result{})
	if r.HasBlocking() {
		t.Fatalf("warn-only result should not block")
	}
	if got := len(r.Warnings()); got != 1 {
		t.Fatalf("expected 1 warning, got %d", got)
	}
	r.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !r.HasBlocking() {
		t.Fatalf("result with a block violation should block")
	}
	if got := len(r.Warnings()); got != 1 {
		t.Fatalf("blocking violations must not count as warnings, got %d", got)
	}
}

func TestErrorTypesUnwrap(t *testing.T) {
	var nf NotFoundError
	err := error(NotFoundError{Entity: EntityTask, ID: "t1"})
	if !errors.As(err, &nf) {
		t.Fatalf("errors.As failed for NotFoundError")
	}
	if nf.ID != "t1" || nf.Entity != EntityTask {
		t.Fatalf("unexpected NotFoundError payload: %+v", nf)
	}

	var cycle CycleError
	err = CycleError{TaskID: "a", DependencyID: "b"}
	if !errors.As(err, &cycle) {
		t.Fatalf("errors.As failed for CycleError")
	}
	if cycle.Error() == "" {
		t.Fatalf("CycleError must describe itself")
	}

	var rv RuleViolationError
	err = RuleViolationError{Result: Result{Violations: []Violation{{Rule: "x", Severity: SeverityBlock}}}}
	if !errors.As(err, &rv) {
		t.Fatalf("errors.As failed for RuleViolationError")
	}
	if !rv.Result.HasBlocking() {
		t.Fatalf("wrapped result should carry the blocking violation")
	}
}
