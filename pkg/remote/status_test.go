package remote

import "testing"

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusWaitInit, "wait_init"},
		{StatusInited, "inited"},
		{StatusStarting, "starting"},
		{StatusRunning, "running"},
		{StatusShutdown, "shutdown"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
