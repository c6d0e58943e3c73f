package instance

import "testing"

func TestGetIDPrecedence(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("WORKER_ID", "")
	if got := GetID(); got != "local" {
		t.Fatalf("expected local default, got %q", got)
	}

	t.Setenv("WORKER_ID", "cron-2")
	if got := GetID(); got != "cron-2" {
		t.Fatalf("expected WORKER_ID, got %q", got)
	}

	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected DYNO to win, got %q", got)
	}
}
