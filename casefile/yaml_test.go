package casefile

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
billing_invoice_send_failed:
  action_type: notification
  transport: hipchat
  room: ops
  severity: high

dns_zone_update_done:
  action_type: restart_workflow
  view: jobs_by_zone
  key: zone
  mode: restart
  reopen: true
  conditions:
    workflow: dns
    status:
      path: data->result->code
      value: "200"
`

func TestParseYAML(t *testing.T) {
	rules, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("ParseYAML() returned %d rules, want 2", len(rules))
	}

	// Rules come back sorted by event name.
	if rules[0].EventName != "billing_invoice_send_failed" {
		t.Errorf("rules[0] = %q, want billing_invoice_send_failed", rules[0].EventName)
	}
	if rules[0].Action.Type != "notification" || rules[0].Action.Room != "ops" {
		t.Errorf("notification rule parsed wrong: %+v", rules[0].Action)
	}

	dns := rules[1]
	if dns.Action.View != "jobs_by_zone" || dns.Action.Key != "zone" {
		t.Errorf("view/key parsed wrong: %+v", dns.Action)
	}
	if !dns.Action.Reopen || dns.Action.Mode != ModeRestart {
		t.Errorf("reopen/mode parsed wrong: %+v", dns.Action)
	}
	if dns.Action.Conditions == nil || dns.Action.Conditions.Status == nil {
		t.Fatalf("conditions not parsed: %+v", dns.Action.Conditions)
	}
	if dns.Action.Conditions.Status.Path != "data->result->code" {
		t.Errorf("status path = %q", dns.Action.Conditions.Status.Path)
	}
	if dns.Action.Conditions.Status.Value != "200" {
		t.Errorf("status value = %q", dns.Action.Conditions.Status.Value)
	}
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "not a mapping", in: "- just\n- a\n- list\n"},
		{name: "missing action type", in: "some_event:\n  room: ops\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(tt.in)); err == nil {
				t.Errorf("ParseYAML() expected an error")
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	base := "base_event_run_done:\n  action_type: notification\n  transport: hipchat\n"
	override := "base_event_run_done:\n  action_type: stop_workflow\n"

	if err := os.WriteFile(filepath.Join(dir, "10-base.yaml"), []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "20-override.yml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("LoadDir() returned %d rules, want 1", len(rules))
	}
	if rules[0].Action.Type != "stop_workflow" {
		t.Errorf("later file should override: action = %q", rules[0].Action.Type)
	}
}
