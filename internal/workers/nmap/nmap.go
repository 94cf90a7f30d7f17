// Package nmap gathers every live host of a network range with an nmap scan.
package nmap

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// Type is the registry name of this worker.
const Type = "nmap"

const cpuArchUnknown = "unknown"

// Settings is the typed form of an nmap node configuration.
type Settings struct {
	Targets     []string `param:"targets" validate:"required,min=1,dive,required"`
	Ports       string   `param:"ports"`
	OSDetection bool     `param:"os_detection"`
}

type scanFunc func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error)

// Worker scans one set of targets.
type Worker struct {
	worker.Base
	settings Settings
	scan     scanFunc
	lookPath func(string) (string, error)
}

// New returns an unconfigured nmap worker.
func New() worker.Worker {
	return &Worker{scan: runScanner, lookPath: exec.LookPath}
}

// Parameters implements worker.Worker.
func (w *Worker) Parameters() worker.ParameterSchema {
	return worker.ParameterSchema{
		{Name: "targets", Default: ""},
		{Name: "ports", Default: "22,443"},
		{Name: "os_detection", Default: false},
	}
}

// Valid reports whether the nmap binary is on PATH.
func (w *Worker) Valid() bool {
	_, err := w.lookPath("nmap")
	return err == nil
}

// SetNode implements worker.Worker.
func (w *Worker) SetNode(cfg worker.NodeConfig) error {
	resolved, err := worker.Resolve(cfg, w.Parameters())
	if err != nil {
		return err
	}
	osDetection, err := resolved.Bool("os_detection")
	if err != nil {
		return err
	}

	targets, err := resolved.Strings("targets")
	if err != nil {
		return err
	}

	settings := Settings{
		Targets:     targets,
		Ports:       strings.TrimSpace(resolved.String("ports")),
		OSDetection: osDetection,
	}
	if err := worker.ValidateSettings(&settings); err != nil {
		return err
	}
	if settings.Targets, err = normalizeTargets(settings.Targets); err != nil {
		return err
	}

	w.settings = settings
	return nil
}

// Run implements worker.Worker.
func (w *Worker) Run(ctx context.Context) worker.RunResult {
	logger := w.Logger()
	logger.InfoContext(ctx, "Starting nmap scan", "targets", w.settings.Targets, "ports", w.settings.Ports)

	opts := []nmap.Option{nmap.WithTargets(w.settings.Targets...)}
	if w.settings.Ports != "" {
		opts = append(opts, nmap.WithPorts(w.settings.Ports))
	}
	if w.settings.OSDetection {
		opts = append(opts, nmap.WithOSDetection())
	}

	result, warnings, err := w.scan(ctx, opts...)
	if len(warnings) > 0 {
		logger.WarnContext(ctx, "nmap reported warnings", "warnings", warnings)
	}
	if err != nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "scan", err))
	}
	if result == nil {
		return worker.Failed(nil, worker.NewBackendError(Type, "scan", fmt.Errorf("nil scan result")))
	}

	records := make([]worker.HostRecord, 0, len(result.Hosts))
	for _, host := range result.Hosts {
		if host.Status.State != "up" || len(host.Addresses) == 0 {
			continue
		}
		records = append(records, toHostRecord(host))
	}
	logger.DebugContext(ctx, "nmap scan complete", "hosts_up", len(records), "hosts_total", len(result.Hosts))

	return worker.Succeeded(worker.AssignKeys(records))
}

func runScanner(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	var w []string
	if warnings != nil {
		w = *warnings
	}
	if err != nil {
		return result, w, fmt.Errorf("scan failed: %w", err)
	}
	return result, w, nil
}

func toHostRecord(host nmap.Host) worker.HostRecord {
	r := worker.NewHostRecord(Type)
	r.CPUArch = cpuArchUnknown
	r.HostIdentifier = primaryAddress(host.Addresses)
	if len(host.Hostnames) > 0 {
		r.Name = host.Hostnames[0].Name
	}
	r.OS, r.OSVersion = osInfo(host.OS)

	network := map[string]any{}
	for _, addr := range host.Addresses {
		if addr.AddrType == "mac" {
			network["mac"] = addr.Addr
			if addr.Vendor != "" {
				network["vendor"] = addr.Vendor
			}
		}
	}
	if open := openPorts(host.Ports); len(open) > 0 {
		network["openPorts"] = open
	}
	if len(network) > 0 {
		r.OptionalVMData["network"] = network
	}
	return r
}

// primaryAddress prefers the IPv4 address and falls back to the first one reported.
func primaryAddress(addrs []nmap.Address) string {
	for _, addr := range addrs {
		if addr.AddrType == "ipv4" {
			return addr.Addr
		}
	}
	return addrs[0].Addr
}

// osInfo uses the best OS match: family as OS, generation (or the match name) as version.
func osInfo(os nmap.OS) (name, version string) {
	if len(os.Matches) == 0 {
		return "", ""
	}
	match := os.Matches[0]
	name, version = match.Name, match.Name
	for _, class := range match.Classes {
		if class.Family != "" {
			name = class.Family
			if class.OSGeneration != "" {
				version = class.OSGeneration
			}
			break
		}
	}
	return name, version
}

func openPorts(ports []nmap.Port) []int {
	var open []int
	for _, p := range ports {
		if p.State.State == "open" {
			open = append(open, int(p.ID))
		}
	}
	return open
}
