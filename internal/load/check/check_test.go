package check

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
)

func TestEvaluate_NoShortCircuit(t *testing.T) {
	result := load.RequestResult{Status: 200}

	checks := Set{}.
		Add("always false", func(load.RequestResult) bool { return false }).
		Add("always true", func(load.RequestResult) bool { return true })

	got := Evaluate(result, checks)
	if len(got) != 2 {
		t.Fatalf("len(Evaluate()) = %d, want 2", len(got))
	}
	if got[0].Name != "always false" || got[0].Passed {
		t.Errorf("got[0] = %+v, want failed \"always false\"", got[0])
	}
	if got[1].Name != "always true" || !got[1].Passed {
		t.Errorf("got[1] = %+v, want passed \"always true\"", got[1])
	}
}

func TestEvaluate_PanicIsFailedCheck(t *testing.T) {
	checks := Set{}.
		Add("panics", func(load.RequestResult) bool { panic("boom") }).
		Add("after panic", StatusIs(200))

	got := Evaluate(load.RequestResult{Status: 200}, checks)
	if len(got) != 2 {
		t.Fatalf("len(Evaluate()) = %d, want 2", len(got))
	}
	if got[0].Passed {
		t.Error("panicking check should fail")
	}
	if !errors.Is(got[0].Err, load.ErrCheckFailure) {
		t.Errorf("got[0].Err = %v, want ErrCheckFailure", got[0].Err)
	}
	if !got[1].Passed {
		t.Error("check after a panic should still be evaluated")
	}
}

func TestEvaluate_NilPredicate(t *testing.T) {
	got := Evaluate(load.RequestResult{}, Set{{Name: "empty"}})
	if len(got) != 1 || got[0].Passed || got[0].Err == nil {
		t.Errorf("Evaluate() = %+v, want one failed check with an error", got)
	}
}

func TestEvaluate_Empty(t *testing.T) {
	if got := Evaluate(load.RequestResult{}, nil); got != nil {
		t.Errorf("Evaluate(nil) = %v, want nil", got)
	}
}

func TestCompile(t *testing.T) {
	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=utf-8")
	result := load.RequestResult{Status: 200, Latency: 120 * time.Millisecond, Header: header}
	noResponse := load.RequestResult{Status: load.StatusNoResponse, Latency: time.Millisecond}

	tests := []struct {
		name   string
		spec   Spec
		result load.RequestResult
		want   bool
	}{
		{"status eq default", Spec{Type: "status", Value: "200"}, result, true},
		{"status ne", Spec{Type: "status", Condition: "ne", Value: "200"}, result, false},
		{"status lt", Spec{Type: "status", Condition: "lt", Value: "400"}, result, true},
		{"status on no response", Spec{Type: "status", Value: "200"}, noResponse, false},
		{"duration lt", Spec{Type: "duration", Condition: "lt", Value: "500ms"}, result, true},
		{"duration gte", Spec{Type: "duration", Condition: "gte", Value: "1s"}, result, false},
		{"duration on no response", Spec{Type: "duration", Condition: "lt", Value: "1s"}, noResponse, false},
		{"header contains", Spec{Type: "header", Path: "Content-Type", Condition: "contains", Value: "json"}, result, true},
		{"header matches", Spec{Type: "header", Path: "content-type", Condition: "matches", Value: `^application/`}, result, true},
		{"header eq missing", Spec{Type: "header", Path: "X-Missing", Value: "x"}, result, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.spec)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if got := p(tt.result); got != tt.want {
				t.Errorf("predicate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"missing type", Spec{Value: "200"}},
		{"unknown type", Spec{Type: "body", Value: "x"}},
		{"bad status", Spec{Type: "status", Value: "ok"}},
		{"bad duration", Spec{Type: "duration", Value: "fast"}},
		{"contains on status", Spec{Type: "status", Condition: "contains", Value: "200"}},
		{"header without path", Spec{Type: "header", Value: "x"}},
		{"gt on header", Spec{Type: "header", Path: "X", Condition: "gt", Value: "1"}},
		{"bad regex", Spec{Type: "header", Path: "X", Condition: "matches", Value: "("}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.spec); err == nil {
				t.Error("Compile() expected error")
			}
		})
	}
}

func TestBuild_DefaultNamesAndOrder(t *testing.T) {
	set, err := Build([]Spec{
		{Name: "status was 200", Type: "status", Value: "200"},
		{Type: "duration", Condition: "lt", Value: "1s"},
		{Type: "header", Path: "Server", Condition: "contains", Value: "nginx"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"status was 200", "duration lt 1s", "header Server contains nginx"}
	got := set.Names()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
