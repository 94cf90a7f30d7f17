// Package libvirt gathers a KVM/QEMU hypervisor and its libvirt domains over SSH.
package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// Type is the registry name of this worker.
const Type = "libvirt"

const dialTimeout = 15 * time.Second

const (
	cmdHostname  = "hostname -f 2>/dev/null || hostname"
	cmdMachineID = "cat /sys/class/dmi/id/product_uuid 2>/dev/null || cat /etc/machine-id"
	cmdLscpu     = "LC_ALL=C lscpu"
	cmdMeminfo   = "cat /proc/meminfo"
	cmdOSRelease = "cat /etc/os-release"
)

// Settings is the typed form of a libvirt node configuration.
type Settings struct {
	Hostname   string `param:"hostname" validate:"required"`
	Port       int    `param:"port" validate:"min=1,max=65535"`
	Username   string `param:"username" validate:"required"`
	Password   string `param:"password"`
	PrivateKey string `param:"private_key"`
	Passphrase string `param:"passphrase"`
	VirshURI   string `param:"virsh_uri" validate:"required"`
}

// Validate requires at least one SSH authentication method.
func (s *Settings) Validate() error {
	if s.Password == "" && s.PrivateKey == "" {
		return &worker.ConfigurationError{Field: "password", Reason: "password or private_key is required"}
	}
	return nil
}

// Worker polls one libvirt hypervisor.
type Worker struct {
	worker.Base
	settings Settings
	dial     func(context.Context, Settings, time.Duration) (runner, error)
}

// New returns an unconfigured libvirt worker.
func New() worker.Worker {
	return &Worker{dial: dialSSH}
}

// Parameters implements worker.Worker.
func (w *Worker) Parameters() worker.ParameterSchema {
	return worker.ParameterSchema{
		{Name: "hostname", Default: ""},
		{Name: "port", Default: 22},
		{Name: "username", Default: ""},
		{Name: "password", Default: "", Optional: true},
		{Name: "private_key", Default: "", Optional: true},
		{Name: "passphrase", Default: "", Optional: true},
		{Name: "virsh_uri", Default: "qemu:///system"},
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

	settings := Settings{
		Hostname:   resolved.String("hostname"),
		Port:       port,
		Username:   resolved.String("username"),
		Password:   resolved.String("password"),
		PrivateKey: resolved.String("private_key"),
		Passphrase: resolved.String("passphrase"),
		VirshURI:   resolved.String("virsh_uri"),
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
	logger.InfoContext(ctx, "Connecting to libvirt host", "host", w.settings.Hostname, "uri", w.settings.VirshURI)

	r, err := w.dial(ctx, w.settings, dialTimeout)
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "connect", err))
	}
	defer r.Close()

	outputs := make(map[string]string, 5)
	for _, cmd := range []string{cmdHostname, cmdMachineID, cmdLscpu, cmdMeminfo, cmdOSRelease} {
		out, err := r.Run(ctx, cmd)
		if err != nil {
			return worker.Failed(nil, worker.NewBackendError(Type, "collect host facts", err))
		}
		outputs[cmd] = out
	}

	record := worker.NewHostRecord(Type)
	record.Name = outputs[cmdHostname]
	record.HostIdentifier = outputs[cmdMachineID]
	record.OS, record.OSVersion = parseOSRelease(outputs[cmdOSRelease])
	record.RAMMb = parseMemTotalMb(outputs[cmdMeminfo])

	cpu := parseLscpu(outputs[cmdLscpu])
	record.CPUArch = cpu.arch
	record.TotalCPUSockets = cpu.sockets
	record.TotalCPUCores = cpu.cores
	record.TotalCPUThreads = cpu.threads
	record.CPUMhz = cpu.mhz

	if err := w.collectDomains(ctx, r, &record); err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "list domains", err))
	}
	logger.DebugContext(ctx, "libvirt inventory", "host", record.Name, "domains", len(record.VMs))

	return worker.Succeeded(worker.AssignKeys([]worker.HostRecord{record}))
}

func (w *Worker) collectDomains(ctx context.Context, r runner, record *worker.HostRecord) error {
	virsh := "virsh -c " + shellQuote(w.settings.VirshURI)

	names, err := r.Run(ctx, virsh+" list --all --name")
	if err != nil {
		return err
	}

	for _, name := range splitLines(names) {
		uuid, err := r.Run(ctx, fmt.Sprintf("%s domuuid %s", virsh, shellQuote(name)))
		if err != nil {
			return err
		}
		state, err := r.Run(ctx, fmt.Sprintf("%s domstate %s", virsh, shellQuote(name)))
		if err != nil {
			return err
		}
		record.VMs[name] = uuid
		record.OptionalVMData[name] = map[string]any{"vmState": state}
	}
	return nil
}
