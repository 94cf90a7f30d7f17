package libvirt

import (
	"bufio"
	"strconv"
	"strings"
)

type cpuFacts struct {
	arch    string
	sockets int
	cores   int
	threads int
	mhz     float64
}

// parseLscpu reads the "Key: value" lines of lscpu.
func parseLscpu(output string) cpuFacts {
	fields := keyValues(output, ":")

	var f cpuFacts
	f.arch = fields["Architecture"]
	f.sockets = atoi(fields["Socket(s)"])
	f.threads = atoi(fields["CPU(s)"])

	coresPerSocket := atoi(fields["Core(s) per socket"])
	if f.sockets == 0 && coresPerSocket > 0 {
		f.sockets = 1
	}
	f.cores = f.sockets * coresPerSocket
	if f.cores == 0 {
		f.cores = f.threads
	}

	for _, key := range []string{"CPU max MHz", "CPU MHz"} {
		if v, err := strconv.ParseFloat(fields[key], 64); err == nil && v > 0 {
			f.mhz = v
			break
		}
	}
	return f
}

// parseMemTotalMb returns MemTotal from /proc/meminfo in MiB.
func parseMemTotalMb(output string) int {
	value := keyValues(output, ":")["MemTotal"]
	kb := atoi(strings.TrimSuffix(value, " kB"))
	return kb / 1024
}

// parseOSRelease returns the NAME and VERSION_ID of /etc/os-release.
func parseOSRelease(output string) (name, version string) {
	fields := keyValues(output, "=")
	for k, v := range fields {
		fields[k] = strings.Trim(v, `"'`)
	}
	name = fields["NAME"]
	version = fields["VERSION_ID"]
	if version == "" {
		version = fields["VERSION"]
	}
	return name, version
}

func keyValues(output, sep string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// splitLines returns the non-empty trimmed lines of output.
func splitLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
