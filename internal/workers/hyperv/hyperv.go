// Package hyperv gathers a Hyper-V host and its virtual machines over WinRM.
package hyperv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// Type is the registry name of this worker.
const Type = "hyperv"

const dialTimeout = 30 * time.Second

// Settings is the typed form of a Hyper-V node configuration.
type Settings struct {
	Hostname string `param:"hostname" validate:"required"`
	Port     int    `param:"port" validate:"min=1,max=65535"`
	Username string `param:"username" validate:"required"`
	Password string `param:"password" validate:"required"`
	Domain   string `param:"domain"`
	UseHTTPS bool   `param:"use_https"`
	Insecure bool   `param:"insecure"`
}

const hostScript = `$cs = Get-CimInstance Win32_ComputerSystem; ` +
	`$os = Get-CimInstance Win32_OperatingSystem; ` +
	`$cpu = @(Get-CimInstance Win32_Processor); ` +
	`[pscustomobject]@{ ` +
	`Name = $cs.DNSHostName; ` +
	`UUID = (Get-CimInstance Win32_ComputerSystemProduct).UUID; ` +
	`Sockets = $cs.NumberOfProcessors; ` +
	`Cores = ($cpu | Measure-Object -Property NumberOfCores -Sum).Sum; ` +
	`Threads = ($cpu | Measure-Object -Property NumberOfLogicalProcessors -Sum).Sum; ` +
	`MaxClockSpeed = $cpu[0].MaxClockSpeed; ` +
	`Architecture = $cpu[0].Architecture; ` +
	`TotalPhysicalMemory = $cs.TotalPhysicalMemory; ` +
	`Caption = $os.Caption; ` +
	`Version = $os.Version ` +
	`} | ConvertTo-Json -Compress`

const vmScript = `Get-VM | Select-Object Name, ` +
	`@{n='Id';e={$_.VMId.ToString()}}, ` +
	`@{n='State';e={$_.State.ToString()}}, ` +
	`ProcessorCount, MemoryStartup | ConvertTo-Json -Compress`

type hostInfo struct {
	Name                string `json:"Name"`
	UUID                string `json:"UUID"`
	Sockets             int    `json:"Sockets"`
	Cores               int    `json:"Cores"`
	Threads             int    `json:"Threads"`
	MaxClockSpeed       int    `json:"MaxClockSpeed"`
	Architecture        int    `json:"Architecture"`
	TotalPhysicalMemory uint64 `json:"TotalPhysicalMemory"`
	Caption             string `json:"Caption"`
	Version             string `json:"Version"`
}

type vmInfo struct {
	Name           string `json:"Name"`
	ID             string `json:"Id"`
	State          string `json:"State"`
	ProcessorCount int    `json:"ProcessorCount"`
	MemoryStartup  uint64 `json:"MemoryStartup"`
}

// Worker polls one Hyper-V host.
type Worker struct {
	worker.Base
	settings Settings
	dial     func(Settings, time.Duration) (shell, error)
}

// New returns an unconfigured Hyper-V worker.
func New() worker.Worker {
	return &Worker{dial: dialWinRM}
}

// Parameters implements worker.Worker.
func (w *Worker) Parameters() worker.ParameterSchema {
	return worker.ParameterSchema{
		{Name: "hostname", Default: ""},
		{Name: "port", Default: 5985},
		{Name: "username", Default: ""},
		{Name: "password", Default: ""},
		{Name: "domain", Default: "", Optional: true},
		{Name: "use_https", Default: false},
		{Name: "insecure", Default: false},
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
	useHTTPS, err := resolved.Bool("use_https")
	if err != nil {
		return err
	}
	insecure, err := resolved.Bool("insecure")
	if err != nil {
		return err
	}

	settings := Settings{
		Hostname: resolved.String("hostname"),
		Port:     port,
		Username: resolved.String("username"),
		Password: resolved.String("password"),
		Domain:   resolved.String("domain"),
		UseHTTPS: useHTTPS,
		Insecure: insecure,
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
	logger.InfoContext(ctx, "Connecting to Hyper-V host", "host", w.settings.Hostname, "port", w.settings.Port)

	sh, err := w.dial(w.settings, dialTimeout)
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "connect", err))
	}

	var host hostInfo
	if err := query(ctx, sh, hostScript, &host); err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "query host", err))
	}

	var vms []vmInfo
	if err := queryList(ctx, sh, vmScript, &vms); err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "list virtual machines", err))
	}
	logger.DebugContext(ctx, "Hyper-V inventory", "host", host.Name, "vms", len(vms))

	return worker.Succeeded(worker.AssignKeys([]worker.HostRecord{toHostRecord(host, vms)}))
}

func toHostRecord(h hostInfo, vms []vmInfo) worker.HostRecord {
	r := worker.NewHostRecord(Type)
	r.Name = h.Name
	r.HostIdentifier = strings.ToLower(h.UUID)
	r.OS = h.Caption
	r.OSVersion = h.Version
	r.TotalCPUSockets = h.Sockets
	r.TotalCPUCores = h.Cores
	r.TotalCPUThreads = h.Threads
	r.CPUMhz = float64(h.MaxClockSpeed)
	r.CPUArch = archName(h.Architecture)
	r.RAMMb = int(h.TotalPhysicalMemory / (1024 * 1024))

	for _, vm := range vms {
		if vm.Name == "" {
			continue
		}
		r.VMs[vm.Name] = strings.ToLower(vm.ID)
		r.OptionalVMData[vm.Name] = map[string]any{
			"vmState":  vm.State,
			"vcpus":    vm.ProcessorCount,
			"memoryMb": vm.MemoryStartup / (1024 * 1024),
		}
	}
	return r
}

// archName maps Win32_Processor.Architecture codes.
func archName(code int) string {
	switch code {
	case 0:
		return "i686"
	case 5:
		return "arm"
	case 6:
		return "ia64"
	case 9:
		return "x86_64"
	case 12:
		return "aarch64"
	default:
		return "unknown"
	}
}

func query(ctx context.Context, sh shell, script string, out any) error {
	output, err := sh.RunPowerShell(ctx, script)
	if err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("no data returned")
	}
	if err := json.Unmarshal([]byte(output), out); err != nil {
		return fmt.Errorf("failed to parse output: %w, raw output: %s", err, output)
	}
	return nil
}

// queryList parses ConvertTo-Json output, which is an object for one item and an array otherwise.
func queryList[T any](ctx context.Context, sh shell, script string, out *[]T) error {
	output, err := sh.RunPowerShell(ctx, script)
	if err != nil {
		return err
	}
	if output == "" {
		*out = nil
		return nil
	}

	if err := json.Unmarshal([]byte(output), out); err == nil {
		return nil
	}
	var single T
	if err := json.Unmarshal([]byte(output), &single); err != nil {
		return fmt.Errorf("failed to parse output: %w, raw output: %s", err, output)
	}
	*out = []T{single}
	return nil
}
