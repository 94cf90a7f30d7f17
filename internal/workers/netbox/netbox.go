// Package netbox gathers devices and their virtual machines from a NetBox CMDB.
package netbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// Type is the registry name of this worker.
const Type = "netbox"

// Settings is the typed form of a NetBox node configuration.
type Settings struct {
	Hostname   string `param:"hostname" validate:"required"`
	Port       int    `param:"port" validate:"min=1,max=65535"`
	PrivateKey string `param:"private_key"`
	Token      string `param:"token" validate:"required"`
	Scheme     string `param:"scheme" validate:"oneof=http https"`
	VerifySSL  bool   `param:"verify_ssl"`
}

// Worker polls one NetBox instance.
type Worker struct {
	worker.Base
	settings Settings
}

// New returns an unconfigured NetBox worker.
func New() worker.Worker {
	return &Worker{}
}

// Parameters implements worker.Worker.
func (w *Worker) Parameters() worker.ParameterSchema {
	return worker.ParameterSchema{
		{Name: "hostname", Default: ""},
		{Name: "port", Default: 443},
		{Name: "private_key", Default: "", Optional: true},
		{Name: "token", Default: ""},
		{Name: "scheme", Default: "https"},
		{Name: "verify_ssl", Default: true},
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
	verify, err := resolved.Bool("verify_ssl")
	if err != nil {
		return err
	}

	settings := Settings{
		Hostname:   resolved.String("hostname"),
		Port:       port,
		PrivateKey: resolved.String("private_key"),
		Token:      resolved.String("token"),
		Scheme:     resolved.String("scheme"),
		VerifySSL:  verify,
	}
	if err := worker.ValidateSettings(&settings); err != nil {
		return err
	}

	w.settings = settings
	return nil
}

// Settings returns the current configuration.
func (w *Worker) Settings() Settings {
	return w.settings
}

func (w *Worker) baseURL() string {
	return fmt.Sprintf("%s://%s:%d/", w.settings.Scheme, w.settings.Hostname, w.settings.Port)
}

// Run implements worker.Worker. NetBox carries no hardware telemetry, so CPU and memory
// fields stay zero and cpuArch is always "cloud".
func (w *Worker) Run(ctx context.Context) worker.RunResult {
	logger := w.Logger()
	base := w.baseURL()
	logger.InfoContext(ctx, "Connecting to NetBox", "url", base)

	api := newAPIClient(base, w.settings.Token, w.settings.VerifySSL)

	if w.settings.PrivateKey != "" {
		if err := api.openSession(ctx, w.settings.PrivateKey); err != nil {
			return worker.Failed(nil, worker.NewBackendError(Type, "get session key", err))
		}
	}

	devices, err := api.devices(ctx)
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "list devices", err))
	}

	records := make([]worker.HostRecord, 0, len(devices))
	byDevice := make(map[int]int, len(devices))
	for _, d := range devices {
		logger.DebugContext(ctx, "Device",
			"id", d.ID,
			"name", deref(d.Name),
			"device_type", deviceModel(d),
		)
		byDevice[d.ID] = len(records)
		records = append(records, toHostRecord(d))
	}

	vms, err := api.virtualMachines(ctx)
	if err != nil {
		return worker.Failed(worker.AssignKeys(records), worker.NewBackendError(Type, "list virtual machines", err))
	}
	for _, vm := range vms {
		if vm.Device == nil {
			continue
		}
		idx, ok := byDevice[vm.Device.ID]
		if !ok {
			continue
		}
		attachVM(&records[idx], vm)
	}

	return worker.Succeeded(worker.AssignKeys(records))
}

func toHostRecord(d device) worker.HostRecord {
	platform := platformName(d.Platform)

	r := worker.NewHostRecord(Type)
	r.Name = deref(d.Name)
	r.HostIdentifier = strconv.Itoa(d.ID)
	r.OS = platform
	r.OSVersion = platform
	r.CPUArch = worker.CPUArchCloud
	return r
}

func attachVM(r *worker.HostRecord, vm virtualMachine) {
	name := vm.Name
	if name == "" {
		name = strconv.Itoa(vm.ID)
	}
	r.VMs[name] = strconv.Itoa(vm.ID)

	data := map[string]any{
		"vmState": "",
	}
	if vm.Status != nil {
		data["vmState"] = vm.Status.Value
	}
	if vm.VCPUs != nil {
		data["vcpus"] = *vm.VCPUs
	}
	if vm.Memory != nil {
		data["memoryMb"] = *vm.Memory
	}
	r.OptionalVMData[name] = data
}

func deviceModel(d device) string {
	if d.DeviceType == nil {
		return ""
	}
	return d.DeviceType.Model
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
