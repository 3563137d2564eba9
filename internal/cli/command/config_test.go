package command

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigCheck(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	out, err := runApp(t, "-o", "json", "config", "check", "--config", path)
	if err != nil {
		t.Fatalf("config check error = %v", err)
	}

	var res checkResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Status != "OK" {
		t.Errorf("Status = %q, want OK", res.Status)
	}
	if res.File != path {
		t.Errorf("File = %q, want %q", res.File, path)
	}
	if res.Storage != "memory" {
		t.Errorf("Storage = %q, want memory", res.Storage)
	}
	if res.Tenants != 2 {
		t.Errorf("Tenants = %d, want 2 (default and t1)", res.Tenants)
	}
}

func TestConfigCheck_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad storage type", "storage:\n  type: etcd\n"},
		{"bad tenant id", "tenants:\n  - tenant_id: \"Bad Id!\"\n"},
		{"duplicate tenant", "tenants:\n  - tenant_id: t1\n  - tenant_id: T1\n"},
		{"short api key", "core:\n  api_keys: short\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runApp(t, "config", "check", "--config", writeConfig(t, tt.content)); err == nil {
				t.Error("config check error = nil, want error")
			}
		})
	}
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	out, err := runApp(t, "-o", "yaml", "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if strings.Contains(out, testAPIKey) {
		t.Errorf("config show printed the API key: %q", out)
	}
	if !strings.Contains(out, "type: memory") {
		t.Errorf("config show = %q, missing storage type", out)
	}
	if !strings.Contains(out, "access_token_validity: 1h0m0s") {
		t.Errorf("config show = %q, missing duration", out)
	}
}

func TestConfigShow_Text(t *testing.T) {
	out, err := runApp(t, "config", "show", "--config", writeConfig(t, memoryConfig))
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "tenants.0.tenant_id") {
		t.Errorf("config show = %q, missing flattened tenant key", out)
	}
}
