package nmap

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// maxTargetHosts caps how many addresses one CIDR block or range may cover.
const maxTargetHosts = 65536

type targetKind string

const (
	targetCIDR     targetKind = "cidr"
	targetRange    targetKind = "range"
	targetAddress  targetKind = "ip"
	targetHostname targetKind = "hostname"
	targetUnknown  targetKind = "unknown"
)

// detectTarget classifies a target value.
//
// Examples:
//   - "192.168.1.0/24" -> "cidr"
//   - "192.168.1.1-192.168.1.50" -> "range"
//   - "192.168.1.100" -> "ip"
//   - "kvm01.lab" -> "hostname"
func detectTarget(value string) targetKind {
	value = strings.TrimSpace(value)

	if strings.Contains(value, "/") {
		if _, err := netip.ParsePrefix(value); err == nil {
			return targetCIDR
		}
		return targetUnknown
	}

	if start, end, ok := strings.Cut(value, "-"); ok {
		_, errStart := netip.ParseAddr(strings.TrimSpace(start))
		_, errEnd := netip.ParseAddr(strings.TrimSpace(end))
		if errStart == nil && errEnd == nil {
			return targetRange
		}
	}

	if _, err := netip.ParseAddr(value); err == nil {
		return targetAddress
	}

	if isHostname(value) {
		return targetHostname
	}
	return targetUnknown
}

// normalizeTargets rewrites every target into a form nmap accepts. Full address ranges are
// not nmap syntax: they become an octet range when only the last octet varies and are
// expanded to single addresses otherwise.
func normalizeTargets(values []string) ([]string, error) {
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		switch detectTarget(value) {
		case targetCIDR:
			prefix, err := checkPrefix(value)
			if err != nil {
				return nil, err
			}
			out = append(out, prefix.Masked().String())
		case targetRange:
			expanded, err := rangeTargets(value)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		case targetAddress, targetHostname:
			out = append(out, value)
		default:
			return nil, targetError("%q is not an IP address, CIDR block, IP range or hostname", value)
		}
	}
	return out, nil
}

func checkPrefix(value string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(value)
	if err != nil {
		return netip.Prefix{}, targetError("invalid CIDR notation %q", value)
	}
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if hostBits > 16 {
		return netip.Prefix{}, targetError("CIDR block %s covers more than %d hosts", value, maxTargetHosts)
	}
	return prefix, nil
}

func rangeTargets(value string) ([]string, error) {
	startStr, endStr, _ := strings.Cut(value, "-")
	start, _ := netip.ParseAddr(strings.TrimSpace(startStr))
	end, _ := netip.ParseAddr(strings.TrimSpace(endStr))

	if start.Is4() != end.Is4() {
		return nil, targetError("IP version mismatch in range %s", value)
	}
	if start.Compare(end) > 0 {
		return nil, targetError("range start %s is after end %s", start, end)
	}

	if start.Is4() {
		s, e := start.As4(), end.As4()
		if s[0] == e[0] && s[1] == e[1] && s[2] == e[2] {
			return []string{fmt.Sprintf("%d.%d.%d.%d-%d", s[0], s[1], s[2], s[3], e[3])}, nil
		}
	}

	var addrs []string
	for current := start; ; current = current.Next() {
		if !current.IsValid() {
			return nil, targetError("address overflow while expanding range %s", value)
		}
		addrs = append(addrs, current.String())
		if len(addrs) > maxTargetHosts {
			return nil, targetError("range %s covers more than %d hosts", value, maxTargetHosts)
		}
		if current == end {
			return addrs, nil
		}
	}
}

func isHostname(value string) bool {
	if value == "" || len(value) > 253 {
		return false
	}
	labels := strings.Split(strings.TrimSuffix(value, "."), ".")
	if strings.Trim(labels[len(labels)-1], "0123456789") == "" {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

func targetError(format string, args ...any) error {
	return &worker.ConfigurationError{Field: "targets", Reason: fmt.Sprintf(format, args...)}
}
