package env

import (
	"testing"
	"time"
)

func TestString_DefaultAndOverride(t *testing.T) {
	if got := String("SCENARIOS_ENV_DOES_NOT_EXIST", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("SCENARIOS_ENV_STRING", "value")
	if got := String("SCENARIOS_ENV_STRING", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("SCENARIOS_ENV_DURATION", "250ms")
	got, err := Duration("SCENARIOS_ENV_DURATION", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}

	t.Setenv("SCENARIOS_ENV_DURATION", "soon")
	if _, err := Duration("SCENARIOS_ENV_DURATION", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("SCENARIOS_ENV_BOOL", "false")
	b, err := Bool("SCENARIOS_ENV_BOOL", true)
	if err != nil || b {
		t.Fatalf("Bool()=%v err=%v, want false", b, err)
	}
	t.Setenv("SCENARIOS_ENV_INT", "x")
	if _, err := Int("SCENARIOS_ENV_INT", 1); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func TestOneOf(t *testing.T) {
	got, err := OneOf("SCENARIOS_ENV_ENUM_MISSING", "replace", "replace", "merge")
	if err != nil || got != "replace" {
		t.Fatalf("OneOf()=%q err=%v, want replace", got, err)
	}
	t.Setenv("SCENARIOS_ENV_ENUM", " MERGE ")
	got, err = OneOf("SCENARIOS_ENV_ENUM", "replace", "replace", "merge")
	if err != nil || got != "merge" {
		t.Fatalf("OneOf()=%q err=%v, want merge", got, err)
	}
	t.Setenv("SCENARIOS_ENV_ENUM", "patch")
	if _, err := OneOf("SCENARIOS_ENV_ENUM", "replace", "replace", "merge"); err == nil {
		t.Fatalf("OneOf() expected error")
	}
}
