package runtime

import "testing"

func TestContainerName(t *testing.T) {
	if got := ContainerName("ciforge_", "job-1"); got != "ciforge_job-1" {
		t.Errorf("got %q, want ciforge_job-1", got)
	}
}

func TestJobIDFromName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		in     string
		wantID string
		wantOK bool
	}{
		{"match", "ciforge_", "ciforge_job-1", "job-1", true},
		{"foreign prefix", "ciforge_", "other_job-1", "", false},
		{"prefix only", "ciforge_", "ciforge_", "", false},
		{"empty prefix matches all", "", "anything", "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := JobIDFromName(tt.prefix, tt.in)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("JobIDFromName(%q, %q) = (%q, %v), want (%q, %v)",
					tt.prefix, tt.in, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}
