package worker

import (
	"encoding/json"
	"testing"
)

func record(name, id string) HostRecord {
	r := NewHostRecord("test")
	r.Name = name
	r.HostIdentifier = id
	return r
}

func TestHostKey(t *testing.T) {
	testCases := []struct {
		name   string
		host   string
		id     string
		expect string
	}{
		{"Name wins", "web01", "1", "web01"},
		{"Empty name uses id", "", "42", "42"},
		{"Whitespace stripped", " web 01\t", "1", "web01"},
		{"Whitespace only uses id", "  ", "7", "7"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HostKey(tc.host, tc.id); got != tc.expect {
				t.Errorf("HostKey(%q, %q) = %q, want %q", tc.host, tc.id, got, tc.expect)
			}
		})
	}
}

func TestAssignKeys(t *testing.T) {
	inv := AssignKeys([]HostRecord{
		record("web01", "1"),
		record("", "42"),
		record("db", "3"),
		record("db", "4"),
		record("", ""),
	})

	for _, key := range []string{"web01", "42", "3", "4"} {
		if _, ok := inv[key]; !ok {
			t.Errorf("Expected key %s in inventory %v", key, keys(inv))
		}
	}
	if _, ok := inv["db"]; ok {
		t.Error("Duplicate names should fall back to host identifiers")
	}
	if len(inv) != 4 {
		t.Errorf("Expected 4 records, got %d", len(inv))
	}
}

func TestAssignKeys_NameClashesWithIdentifier(t *testing.T) {
	inv := AssignKeys([]HostRecord{
		record("", "5"),
		record("5", "9"),
	})

	if len(inv) != 2 {
		t.Fatalf("Expected 2 records, got %d: %v", len(inv), keys(inv))
	}
	if inv["5"].HostIdentifier != "5" {
		t.Errorf("Expected key 5 to hold the record with id 5")
	}
	if inv["9"].Name != "5" {
		t.Errorf("Expected record named 5 to fall back to its id")
	}
}

func TestHostRecordJSON_NoMissingKeys(t *testing.T) {
	r := HostRecord{Type: "netbox"}
	inv := AssignKeys([]HostRecord{{Type: "netbox", HostIdentifier: "1"}})

	data, err := json.Marshal(inv["1"])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	expected := []string{
		"type", "name", "hostIdentifier", "os", "osVersion", "totalCpuSockets",
		"totalCpuCores", "totalCpuThreads", "cpuMhz", "cpuArch", "ramMb", "vms", "optionalVmData",
	}
	for _, key := range expected {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Missing key %s in %s", key, data)
		}
	}
	if decoded["vms"] == nil || decoded["optionalVmData"] == nil {
		t.Errorf("Maps must encode as objects, got %s", data)
	}
	if r.VMs != nil {
		t.Error("Literal record should not be modified by AssignKeys")
	}
}

func keys(inv Inventory) []string {
	out := make([]string, 0, len(inv))
	for k := range inv {
		out = append(out, k)
	}
	return out
}
