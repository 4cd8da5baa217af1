package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func tagging(tag string, called *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*called = append(*called, tag+"-before")
			next.ServeHTTP(w, r)
			*called = append(*called, tag+"-after")
		})
	}
}

func TestChainThen(t *testing.T) {
	var called []string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = append(called, "handler")
	})

	wrapped := NewChain(tagging("m1", &called), tagging("m2", &called)).Then(handler)
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	expected := []string{"m1-before", "m2-before", "handler", "m2-after", "m1-after"}
	if len(called) != len(expected) {
		t.Fatalf("Expected %d calls, got %d: %v", len(expected), len(called), called)
	}
	for i, v := range expected {
		if called[i] != v {
			t.Errorf("call %d = %s, want %s", i, called[i], v)
		}
	}
}

func TestChainAppendDoesNotMutate(t *testing.T) {
	var called []string
	base := NewChain(tagging("m1", &called))
	extended := base.Append(tagging("m2", &called))

	if len(base.middlewares) != 1 {
		t.Errorf("base chain has %d middlewares, want 1", len(base.middlewares))
	}
	if len(extended.middlewares) != 2 {
		t.Errorf("extended chain has %d middlewares, want 2", len(extended.middlewares))
	}
	if len(extended.Handlers()) != 2 {
		t.Errorf("Handlers() returned %d entries, want 2", len(extended.Handlers()))
	}
}

func TestChainThenFuncEmpty(t *testing.T) {
	handler := NewChain().ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
