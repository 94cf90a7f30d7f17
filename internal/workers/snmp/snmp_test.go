package snmp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nmslite/hostgatherer/internal/worker"
)

type fakeAgent struct {
	scalars []gosnmp.SnmpPDU
	walks   map[string][]gosnmp.SnmpPDU
	getErr  error
	walkErr error
	closed  bool
}

func (f *fakeAgent) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &gosnmp.SnmpPacket{Variables: f.scalars}, nil
}

func (f *fakeAgent) BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error) {
	if f.walkErr != nil {
		return nil, f.walkErr
	}
	return f.walks[rootOid], nil
}

func (f *fakeAgent) Close() error {
	f.closed = true
	return nil
}

func linuxAgent() *fakeAgent {
	return &fakeAgent{
		scalars: []gosnmp.SnmpPDU{
			{Name: oidSysDescr, Type: gosnmp.OctetString, Value: []byte("Linux fw01 5.15.0-91-generic #101-Ubuntu SMP x86_64")},
			{Name: oidSysName, Type: gosnmp.OctetString, Value: []byte("fw01")},
			{Name: oidHrMemorySize, Type: gosnmp.Integer, Value: 16318480},
		},
		walks: map[string][]gosnmp.SnmpPDU{
			oidHrDeviceType: {
				{Name: oidHrDeviceType + ".196608", Type: gosnmp.ObjectIdentifier, Value: oidHrDeviceCPU},
				{Name: oidHrDeviceType + ".196609", Type: gosnmp.ObjectIdentifier, Value: oidHrDeviceCPU},
				{Name: oidHrDeviceType + ".262145", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.2.1.25.3.1.4"},
			},
			oidHrDeviceDescr: {
				{Name: oidHrDeviceDescr + ".196608", Type: gosnmp.OctetString, Value: []byte("GenuineIntel: Intel(R) Xeon(R) CPU E5-2620 v4 @ 2.10GHz")},
				{Name: oidHrDeviceDescr + ".196609", Type: gosnmp.OctetString, Value: []byte("GenuineIntel: Intel(R) Xeon(R) CPU E5-2620 v4 @ 2.10GHz")},
				{Name: oidHrDeviceDescr + ".262145", Type: gosnmp.OctetString, Value: []byte("network interface lo")},
			},
		},
	}
}

func newTestWorker(t *testing.T, a agent, dialErr error) *Worker {
	t.Helper()
	w := New().(*Worker)
	w.dial = func(context.Context, Settings, time.Duration) (agent, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return a, nil
	}
	if err := w.SetNode(worker.NodeConfig{"hostname": "10.0.0.1"}); err != nil {
		t.Fatalf("SetNode failed: %v", err)
	}
	return w
}

func TestSetNode(t *testing.T) {
	testCases := []struct {
		name      string
		cfg       worker.NodeConfig
		wantField string
	}{
		{name: "defaults", cfg: worker.NodeConfig{"hostname": "h"}},
		{name: "empty community", cfg: worker.NodeConfig{"hostname": "h", "community": ""}, wantField: "community"},
		{name: "bad version", cfg: worker.NodeConfig{"hostname": "h", "version": "1"}, wantField: "version"},
		{name: "v3 without user", cfg: worker.NodeConfig{"hostname": "h", "version": "3", "security_level": "authPriv"}, wantField: "security_name"},
		{name: "v3 bad level", cfg: worker.NodeConfig{"hostname": "h", "version": "3", "security_name": "u", "security_level": "x"}, wantField: "security_level"},
		{name: "v3 valid", cfg: worker.NodeConfig{"hostname": "h", "version": "3", "security_name": "u", "security_level": "noAuthNoPriv"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := New().SetNode(tc.cfg)
			if tc.wantField == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			var cfgErr *worker.ConfigurationError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tc.wantField {
				t.Errorf("Expected ConfigurationError on %s, got %v", tc.wantField, err)
			}
		})
	}
}

func TestRun_MapsHostResources(t *testing.T) {
	a := linuxAgent()
	res := newTestWorker(t, a, nil).Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run failed: %v", res.Err)
	}
	if !a.closed {
		t.Error("Expected agent to be closed")
	}

	host, ok := res.Hosts["fw01"]
	if !ok {
		t.Fatalf("Expected host fw01, got %v", res.Hosts)
	}
	if host.HostIdentifier != "10.0.0.1" {
		t.Errorf("Expected identifier 10.0.0.1, got %s", host.HostIdentifier)
	}
	if host.OS != "Linux" || host.OSVersion != "5.15.0-91-generic" {
		t.Errorf("Unexpected OS: %s %s", host.OS, host.OSVersion)
	}
	if host.CPUArch != "x86_64" {
		t.Errorf("Expected x86_64, got %s", host.CPUArch)
	}
	if host.TotalCPUThreads != 2 || host.CPUMhz != 2100 {
		t.Errorf("Expected 2 processors at 2100 MHz, got %d at %v", host.TotalCPUThreads, host.CPUMhz)
	}
	if host.RAMMb != 15936 {
		t.Errorf("Expected 15936 MB, got %d", host.RAMMb)
	}
}

func TestRun_Failures(t *testing.T) {
	testCases := []struct {
		name    string
		agent   *fakeAgent
		dialErr error
	}{
		{name: "dial", agent: &fakeAgent{}, dialErr: errors.New("no route")},
		{name: "get", agent: &fakeAgent{getErr: errors.New("request timeout")}},
		{name: "walk", agent: &fakeAgent{walkErr: errors.New("request timeout")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := newTestWorker(t, tc.agent, tc.dialErr).Run(context.Background())
			var backendErr *worker.BackendError
			if !errors.As(res.Err, &backendErr) {
				t.Fatalf("Expected BackendError, got %v", res.Err)
			}
			if len(res.Hosts) != 0 {
				t.Errorf("Expected no hosts, got %v", res.Hosts)
			}
		})
	}
}

func TestParseSysDescr(t *testing.T) {
	testCases := []struct {
		descr   string
		os      string
		version string
		arch    string
	}{
		{descr: "Linux nas 4.4.302+ #69057 SMP Fri Jan 12 17:02:28 CST 2024 x86_64", os: "Linux", version: "4.4.302+", arch: "x86_64"},
		{descr: "Hardware: Intel64 Family 6 Model 85 - Software: Windows Version 6.3 (Build 17763 Multiprocessor Free)", os: "Windows", version: "6.3", arch: "x86_64"},
		{descr: "FreeBSD gw 13.2-RELEASE FreeBSD 13.2-RELEASE amd64", os: "FreeBSD", version: "13.2-RELEASE", arch: "x86_64"},
		{descr: "Cisco IOS Software, C2960 Software", os: "Cisco", version: "", arch: "unknown"},
		{descr: "", os: "", version: "", arch: "unknown"},
	}

	for _, tc := range testCases {
		osName, version := parseSysDescr(tc.descr)
		if osName != tc.os || version != tc.version {
			t.Errorf("parseSysDescr(%q): expected %q %q, got %q %q", tc.descr, tc.os, tc.version, osName, version)
		}
		if arch := archFromSysDescr(tc.descr); arch != tc.arch {
			t.Errorf("archFromSysDescr(%q): expected %s, got %s", tc.descr, tc.arch, arch)
		}
	}
}

func TestClockMhz(t *testing.T) {
	testCases := map[string]float64{
		"Intel(R) Core(TM) i7-8700 CPU @ 3.20GHz": 3200,
		"ARM Cortex-A72 1500 MHz":                  1500,
		"AMD EPYC 7302":                            0,
	}
	for descr, expected := range testCases {
		if got := clockMhz(descr); got != expected {
			t.Errorf("clockMhz(%q): expected %v, got %v", descr, expected, got)
		}
	}
}
