package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/hostgatherer/internal/worker"
)

func sampleInventory() worker.Inventory {
	r := worker.NewHostRecord("netbox")
	r.Name = "web 01"
	r.HostIdentifier = "1"
	r.OS = "linux"
	r.OSVersion = "linux"
	r.CPUArch = worker.CPUArchCloud
	r.VMs["app"] = "10"
	return worker.Inventory{"web01": r}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleInventory(), Options{Format: FormatJSON, Pretty: true}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	host := decoded["web01"]
	for _, key := range []string{"type", "name", "hostIdentifier", "os", "osVersion", "totalCpuSockets",
		"totalCpuCores", "totalCpuThreads", "cpuMhz", "cpuArch", "ramMb", "vms", "optionalVmData"} {
		if _, ok := host[key]; !ok {
			t.Errorf("Expected key %s in output", key)
		}
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("Expected indented output")
	}
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleInventory(), Options{Format: FormatYAML}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var decoded map[string]map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid YAML: %v", err)
	}
	if decoded["web01"]["cpuArch"] != "cloud" {
		t.Errorf("Expected cpuArch cloud, got %v", decoded["web01"]["cpuArch"])
	}
}

func TestWrite_EmptyAndUnsupported(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, Options{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "{}" {
		t.Errorf("Expected {}, got %q", buf.String())
	}

	if err := Write(&buf, nil, Options{Format: "xml"}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestWriteFile_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.json")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	if err := WriteFile(path, sampleInventory(), Options{Format: FormatJSON}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if !strings.Contains(string(data), `"web01"`) {
		t.Errorf("Expected new inventory, got %s", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected temp file to be gone, found %d entries", len(entries))
	}
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "inventory.json")
	if err := WriteFile(path, sampleInventory(), Options{}); err == nil {
		t.Error("Expected error for a missing directory")
	}
}
