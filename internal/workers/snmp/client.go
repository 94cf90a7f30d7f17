package snmp

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// agent is the subset of gosnmp used to read HOST-RESOURCES-MIB.
type agent interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
	Close() error
}

type gosnmpAgent struct {
	*gosnmp.GoSNMP
}

func (a *gosnmpAgent) Close() error {
	if a.Conn == nil {
		return nil
	}
	return a.Conn.Close()
}

// connect builds a v2c or v3 session for s and opens the UDP socket.
func connect(ctx context.Context, s Settings, timeout time.Duration) (agent, error) {
	g := &gosnmp.GoSNMP{
		Context:            ctx,
		Target:             s.Hostname,
		Port:               uint16(s.Port),
		Timeout:            timeout,
		Retries:            s.Retries,
		MaxOids:            gosnmp.MaxOids,
		MaxRepetitions:     25,
		ExponentialTimeout: true,
	}

	if s.Version == "3" {
		if err := applyV3(g, s); err != nil {
			return nil, err
		}
	} else {
		g.Version = gosnmp.Version2c
		g.Community = s.Community
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("SNMP connection failed: %w", err)
	}
	return &gosnmpAgent{GoSNMP: g}, nil
}

func applyV3(g *gosnmp.GoSNMP, s Settings) error {
	g.Version = gosnmp.Version3
	g.SecurityModel = gosnmp.UserSecurityModel

	var level gosnmp.SnmpV3MsgFlags
	switch s.SecurityLevel {
	case "noAuthNoPriv":
		level = gosnmp.NoAuthNoPriv
	case "authNoPriv":
		level = gosnmp.AuthNoPriv
	case "authPriv":
		level = gosnmp.AuthPriv
	default:
		return fmt.Errorf("invalid security level: %s", s.SecurityLevel)
	}
	g.MsgFlags = level

	params := &gosnmp.UsmSecurityParameters{UserName: s.SecurityName}
	if level != gosnmp.NoAuthNoPriv {
		params.AuthenticationProtocol = authProtocol(s.AuthProtocol)
		params.AuthenticationPassphrase = s.AuthPassword
	}
	if level == gosnmp.AuthPriv {
		params.PrivacyProtocol = privProtocol(s.PrivProtocol)
		params.PrivacyPassphrase = s.PrivPassword
	}
	g.SecurityParameters = params
	return nil
}

func authProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch name {
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.MD5
	}
}

func privProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch name {
	case "DES":
		return gosnmp.DES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.AES
	}
}
