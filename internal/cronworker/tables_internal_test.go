package cronworker

import "testing"

func TestManagerTableNamesUseConfiguredPrefix(t *testing.T) {
	m := NewManager(nil, "pc")

	cases := map[string]string{
		m.configTable(): "pc_processor_config",
		m.jobsTable():   "pc_active_jobs",
		m.logTable():    "pc_processor_log",
	}

	for got, want := range cases {
		if got != want {
			t.Errorf("got table name %q, want %q", got, want)
		}
	}
}

func TestManagerTableNamesTrackPrefixChange(t *testing.T) {
	m := NewManager(nil, "other")

	if got := m.configTable(); got != "other_processor_config" {
		t.Errorf("configTable() = %q", got)
	}
}
