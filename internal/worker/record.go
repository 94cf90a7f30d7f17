package worker

import (
	"fmt"
	"strings"
	"unicode"
)

// CPUArchCloud marks records that come from a source without hardware telemetry.
const CPUArchCloud = "cloud"

// HostRecord is the canonical, backend agnostic description of a host.
// Field names are consumed by downstream tooling and must not change.
type HostRecord struct {
	Type            string            `json:"type" yaml:"type"`
	Name            string            `json:"name" yaml:"name"`
	HostIdentifier  string            `json:"hostIdentifier" yaml:"hostIdentifier"`
	OS              string            `json:"os" yaml:"os"`
	OSVersion       string            `json:"osVersion" yaml:"osVersion"`
	TotalCPUSockets int               `json:"totalCpuSockets" yaml:"totalCpuSockets"`
	TotalCPUCores   int               `json:"totalCpuCores" yaml:"totalCpuCores"`
	TotalCPUThreads int               `json:"totalCpuThreads" yaml:"totalCpuThreads"`
	CPUMhz          float64           `json:"cpuMhz" yaml:"cpuMhz"`
	CPUArch         string            `json:"cpuArch" yaml:"cpuArch"`
	RAMMb           int               `json:"ramMb" yaml:"ramMb"`
	VMs             map[string]string `json:"vms" yaml:"vms"`
	OptionalVMData  map[string]any    `json:"optionalVmData" yaml:"optionalVmData"`
}

// NewHostRecord returns a record of the given worker type with every field at its zero value
// and both maps allocated.
func NewHostRecord(workerType string) HostRecord {
	return HostRecord{
		Type:           workerType,
		VMs:            map[string]string{},
		OptionalVMData: map[string]any{},
	}
}

// normalized makes sure maps are never nil so encoders emit {} instead of null.
func (r HostRecord) normalized() HostRecord {
	if r.VMs == nil {
		r.VMs = map[string]string{}
	}
	if r.OptionalVMData == nil {
		r.OptionalVMData = map[string]any{}
	}
	return r
}

// Inventory maps a host key to its record.
type Inventory map[string]HostRecord

// HostKey returns name with all whitespace removed, or id when that is empty.
func HostKey(name, id string) string {
	if key := stripSpace(name); key != "" {
		return key
	}
	return id
}

// AssignKeys keys a single worker's records. A record is keyed by its whitespace stripped
// name when that is non-empty and unique among records, otherwise by its host identifier.
// Records with neither a name nor an identifier are dropped.
func AssignKeys(records []HostRecord) Inventory {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		if key := stripSpace(r.Name); key != "" {
			counts[key]++
		}
	}

	inv := make(Inventory, len(records))
	for _, r := range records {
		key := stripSpace(r.Name)
		if key == "" || counts[key] > 1 {
			key = r.HostIdentifier
		}
		if key == "" {
			continue
		}
		if _, taken := inv[key]; taken && key != r.HostIdentifier && r.HostIdentifier != "" {
			key = r.HostIdentifier
		}
		if _, taken := inv[key]; taken {
			key = uniqueKey(inv, key)
		}
		inv[key] = r.normalized()
	}
	return inv
}

func uniqueKey(inv Inventory, key string) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", key, n)
		if _, taken := inv[candidate]; !taken {
			return candidate
		}
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
