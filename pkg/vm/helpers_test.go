package vm

import (
	"testing"
)

func newTestRealm(t *testing.T, opts AgentOptions) (*Agent, *Realm) {
	t.Helper()
	a := NewAgent(opts)
	r, err := NewRealm(a, nil)
	if err != nil {
		t.Fatalf("Failed to create realm: %v", err)
	}
	t.Cleanup(a.Close)
	return a, r
}

// evalScript runs src as a script and drains the job queue afterwards.
func evalScript(t *testing.T, r *Realm, src string) Completion {
	t.Helper()
	c := r.EvaluateScript(src, ScriptOptions{Specifier: "test.js"})
	r.Agent().RunJobs()
	return c
}

func mustEval(t *testing.T, r *Realm, src string) Value {
	t.Helper()
	c := evalScript(t, r, src)
	if c.Type != Normal {
		t.Fatalf("Expected a normal completion for %q, got %s", src, c)
	}
	return c.ValueOrUndefined()
}

func getProp(t *testing.T, r *Realm, v Value, name string) Value {
	t.Helper()
	o, ok := v.(*Object)
	if !ok {
		t.Fatalf("Expected an object, got %s", Inspect(v))
	}
	var result Value
	r.Scope(func() {
		got, c := Get(r.Agent(), o, NewString(name))
		if c != nil {
			t.Fatalf("Reading %s threw %s", name, Inspect(c.Value))
		}
		result = got
	})
	return result
}

func expectSame(t *testing.T, label string, got, want Value) {
	t.Helper()
	if !SameValue(got, want) {
		t.Errorf("%s: Expected %s, got %s", label, Inspect(want), Inspect(got))
	}
}
