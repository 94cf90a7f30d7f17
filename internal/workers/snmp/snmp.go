// Package snmp gathers a single host through the HOST-RESOURCES-MIB of its SNMP agent.
package snmp

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// Type is the registry name of this worker.
const Type = "snmp"

const requestTimeout = 5 * time.Second

const (
	oidSysDescr      = ".1.3.6.1.2.1.1.1.0"
	oidSysName       = ".1.3.6.1.2.1.1.5.0"
	oidHrMemorySize  = ".1.3.6.1.2.1.25.2.2.0"
	oidHrDeviceType  = ".1.3.6.1.2.1.25.3.2.1.2"
	oidHrDeviceDescr = ".1.3.6.1.2.1.25.3.2.1.3"
	oidHrDeviceCPU   = ".1.3.6.1.2.1.25.3.1.3"
)

var clockPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*([GM])Hz`)

// Settings is the typed form of an SNMP node configuration.
type Settings struct {
	Hostname      string `param:"hostname" validate:"required"`
	Port          int    `param:"port" validate:"min=1,max=65535"`
	Community     string `param:"community"`
	Retries       int    `param:"retries" validate:"min=0,max=10"`
	Version       string `param:"version" validate:"oneof=2c 3"`
	SecurityLevel string `param:"security_level"`
	SecurityName  string `param:"security_name"`
	AuthProtocol  string `param:"auth_protocol"`
	AuthPassword  string `param:"auth_password"`
	PrivProtocol  string `param:"priv_protocol"`
	PrivPassword  string `param:"priv_password"`
}

// Validate checks the version specific credentials.
func (s *Settings) Validate() error {
	if s.Version == "3" {
		if s.SecurityName == "" {
			return &worker.ConfigurationError{Field: "security_name", Reason: "required for SNMP v3"}
		}
		switch s.SecurityLevel {
		case "noAuthNoPriv", "authNoPriv", "authPriv":
		default:
			return &worker.ConfigurationError{Field: "security_level", Reason: "must be one of: noAuthNoPriv authNoPriv authPriv"}
		}
		return nil
	}
	if s.Community == "" {
		return &worker.ConfigurationError{Field: "community", Reason: "required for SNMP v2c"}
	}
	return nil
}

// Worker polls one SNMP agent.
type Worker struct {
	worker.Base
	settings Settings
	dial     func(context.Context, Settings, time.Duration) (agent, error)
}

// New returns an unconfigured SNMP worker.
func New() worker.Worker {
	return &Worker{dial: connect}
}

// Parameters implements worker.Worker.
func (w *Worker) Parameters() worker.ParameterSchema {
	return worker.ParameterSchema{
		{Name: "hostname", Default: ""},
		{Name: "port", Default: 161},
		{Name: "community", Default: "public"},
		{Name: "retries", Default: 1},
		{Name: "version", Default: "2c"},
		{Name: "security_level", Default: "", Optional: true},
		{Name: "security_name", Default: "", Optional: true},
		{Name: "auth_protocol", Default: "", Optional: true},
		{Name: "auth_password", Default: "", Optional: true},
		{Name: "priv_protocol", Default: "", Optional: true},
		{Name: "priv_password", Default: "", Optional: true},
	}
}

// SetNode implements worker.Worker.
func (w *Worker) SetNode(cfg worker.NodeConfig) error {
	resolved, err := worker.Resolve(cfg, w.Parameters())
	if err != nil {
		return err
	}
	port, err := resolved.Int("port")
	if err != nil {
		return err
	}
	retries, err := resolved.Int("retries")
	if err != nil {
		return err
	}

	settings := Settings{
		Hostname:      resolved.String("hostname"),
		Port:          port,
		Community:     resolved.String("community"),
		Retries:       retries,
		Version:       resolved.String("version"),
		SecurityLevel: resolved.String("security_level"),
		SecurityName:  resolved.String("security_name"),
		AuthProtocol:  resolved.String("auth_protocol"),
		AuthPassword:  resolved.String("auth_password"),
		PrivProtocol:  resolved.String("priv_protocol"),
		PrivPassword:  resolved.String("priv_password"),
	}
	if err := worker.ValidateSettings(&settings); err != nil {
		return err
	}

	w.settings = settings
	return nil
}

// Run implements worker.Worker.
func (w *Worker) Run(ctx context.Context) worker.RunResult {
	logger := w.Logger()
	logger.InfoContext(ctx, "Querying SNMP agent", "host", w.settings.Hostname, "version", w.settings.Version)

	a, err := w.dial(ctx, w.settings, requestTimeout)
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "connect", err))
	}
	defer a.Close()

	scalars, err := a.Get([]string{oidSysDescr, oidSysName, oidHrMemorySize})
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "get system scalars", err))
	}
	values := make(map[string]gosnmp.SnmpPDU, len(scalars.Variables))
	for _, v := range scalars.Variables {
		values[v.Name] = v
	}

	types, err := a.BulkWalkAll(oidHrDeviceType)
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "walk hrDeviceType", err))
	}
	descrs, err := a.BulkWalkAll(oidHrDeviceDescr)
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "walk hrDeviceDescr", err))
	}

	sysDescr := pduString(values[oidSysDescr])
	record := worker.NewHostRecord(Type)
	record.Name = pduString(values[oidSysName])
	record.HostIdentifier = w.settings.Hostname
	record.OS, record.OSVersion = parseSysDescr(sysDescr)
	record.CPUArch = archFromSysDescr(sysDescr)
	record.RAMMb = int(pduInt(values[oidHrMemorySize]) / 1024)

	processors := processorDescriptions(types, descrs)
	record.TotalCPUThreads = len(processors)
	if len(processors) > 0 {
		record.CPUMhz = clockMhz(processors[0])
	}
	logger.DebugContext(ctx, "SNMP inventory", "sys_name", record.Name, "processors", len(processors))

	return worker.Succeeded(worker.AssignKeys([]worker.HostRecord{record}))
}

// processorDescriptions returns hrDeviceDescr of every hrDeviceProcessor entry, in walk order.
func processorDescriptions(types, descrs []gosnmp.SnmpPDU) []string {
	byIndex := make(map[string]string, len(descrs))
	for _, d := range descrs {
		byIndex[strings.TrimPrefix(d.Name, oidHrDeviceDescr+".")] = pduString(d)
	}

	var processors []string
	for _, t := range types {
		oid, ok := t.Value.(string)
		if !ok || oid != oidHrDeviceCPU {
			continue
		}
		processors = append(processors, byIndex[strings.TrimPrefix(t.Name, oidHrDeviceType+".")])
	}
	return processors
}

// parseSysDescr derives the OS name and version from sysDescr.
func parseSysDescr(descr string) (osName, version string) {
	if idx := strings.Index(descr, "Software: Windows"); idx >= 0 {
		rest := descr[idx+len("Software: "):]
		if v := strings.Index(rest, "Version "); v >= 0 {
			fields := strings.Fields(rest[v+len("Version "):])
			if len(fields) > 0 {
				version = fields[0]
			}
		}
		return "Windows", version
	}

	fields := strings.Fields(descr)
	switch {
	case len(fields) == 0:
		return "", ""
	case len(fields) >= 3 && (fields[0] == "Linux" || strings.HasSuffix(fields[0], "BSD") || fields[0] == "Darwin"):
		return fields[0], fields[2]
	default:
		return fields[0], ""
	}
}

func archFromSysDescr(descr string) string {
	for _, field := range strings.Fields(descr) {
		switch field {
		case "x86_64", "amd64":
			return "x86_64"
		case "aarch64", "arm64":
			return "aarch64"
		case "i386", "i686":
			return "i686"
		}
	}
	if strings.Contains(descr, "Intel64") || strings.Contains(descr, "AMD64") {
		return "x86_64"
	}
	return "unknown"
}

// clockMhz extracts a clock speed such as "@ 2.10GHz" from a processor description.
func clockMhz(descr string) float64 {
	m := clockPattern.FindStringSubmatch(descr)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == "G" {
		v *= 1000
	}
	return v
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(v))
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

func pduInt(pdu gosnmp.SnmpPDU) int64 {
	if pdu.Value == nil {
		return 0
	}
	n := gosnmp.ToBigInt(pdu.Value)
	if n == nil || !n.IsInt64() || n.Cmp(big.NewInt(0)) < 0 {
		return 0
	}
	return n.Int64()
}
