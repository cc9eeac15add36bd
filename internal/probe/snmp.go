package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/rileyhilliard/fleet/internal/errors"
)

// DefaultMIB is assumed for symbolic names given without a module.
const DefaultMIB = "SNMPv2-MIB"

// knownObjects maps MIB::name to the numeric OID of the scalar, without
// the trailing instance.
var knownObjects = map[string]string{
	"SNMPv2-MIB::sysDescr":                     ".1.3.6.1.2.1.1.1",
	"SNMPv2-MIB::sysObjectID":                  ".1.3.6.1.2.1.1.2",
	"SNMPv2-MIB::sysUpTime":                    ".1.3.6.1.2.1.1.3",
	"SNMPv2-MIB::sysContact":                   ".1.3.6.1.2.1.1.4",
	"SNMPv2-MIB::sysName":                      ".1.3.6.1.2.1.1.5",
	"SNMPv2-MIB::sysLocation":                  ".1.3.6.1.2.1.1.6",
	"SNMPv2-MIB::sysServices":                  ".1.3.6.1.2.1.1.7",
	"IF-MIB::ifNumber":                         ".1.3.6.1.2.1.2.1",
	"HOST-RESOURCES-MIB::hrSystemUptime":       ".1.3.6.1.2.1.25.1.1",
	"HOST-RESOURCES-MIB::hrSystemNumUsers":     ".1.3.6.1.2.1.25.1.5",
	"HOST-RESOURCES-MIB::hrSystemProcesses":    ".1.3.6.1.2.1.25.1.6",
	"HOST-RESOURCES-MIB::hrSystemMaxProcesses": ".1.3.6.1.2.1.25.1.7",
	"HOST-RESOURCES-MIB::hrMemorySize":         ".1.3.6.1.2.1.25.2.2",
	"UCD-SNMP-MIB::memTotalReal":               ".1.3.6.1.4.1.2021.4.5",
	"UCD-SNMP-MIB::memAvailReal":               ".1.3.6.1.4.1.2021.4.6",
}

// SNMPTarget names one object on one agent.
type SNMPTarget struct {
	Host string
	MIB  string
	OID  string // symbolic name (sysDescr) or numeric OID
}

// SNMPValue is the outcome of one GET. Value is empty on failure.
type SNMPValue struct {
	Target    SNMPTarget
	Numeric   string
	Value     string
	CheckTime time.Time
	Err       error
}

// ResolveOID turns a MIB and object name into a numeric OID. Numeric input
// is returned unchanged; symbolic scalars get the ".0" instance appended.
func ResolveOID(mib, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New(errors.ErrProbe, "Empty SNMP object name", "")
	}
	if name[0] == '.' || (name[0] >= '0' && name[0] <= '9') {
		if name[0] != '.' {
			name = "." + name
		}
		return name, nil
	}

	if m, obj, ok := strings.Cut(name, "::"); ok {
		mib, name = m, obj
	}
	if mib == "" {
		mib = DefaultMIB
	}

	base, ok := knownObjects[mib+"::"+name]
	if !ok {
		return "", errors.New(errors.ErrProbe,
			fmt.Sprintf("Unknown SNMP object %s::%s", mib, name),
			"Use a numeric OID like .1.3.6.1.2.1.1.5.0")
	}
	return base + ".0", nil
}

// SNMPGetter polls single values with community-based SNMP.
type SNMPGetter struct {
	Community string
	Port      int
	Version   string // "1" or "2c"
	Timeout   time.Duration
	Retries   int
}

// Get fetches one value.
func (g *SNMPGetter) Get(ctx context.Context, target SNMPTarget) SNMPValue {
	res := SNMPValue{Target: target, CheckTime: time.Now()}

	oid, err := ResolveOID(target.MIB, target.OID)
	if err != nil {
		res.Err = err
		return res
	}
	res.Numeric = oid

	version := gosnmp.Version1
	if g.Version == "2c" {
		version = gosnmp.Version2c
	}

	client := &gosnmp.GoSNMP{
		Target:    target.Host,
		Port:      uint16(g.Port),
		Transport: "udp",
		Community: g.Community,
		Version:   version,
		Timeout:   g.Timeout,
		Retries:   g.Retries,
		Context:   ctx,
		MaxOids:   gosnmp.MaxOids,
	}
	if err := client.Connect(); err != nil {
		res.Err = Categorize(target.Host, err)
		return res
	}
	defer client.Conn.Close()

	pkt, err := client.Get([]string{oid})
	if err != nil {
		res.Err = Categorize(target.Host, err)
		return res
	}
	if pkt.Error != gosnmp.NoError {
		res.Err = fmt.Errorf("snmp error %s at index %d", pkt.Error, pkt.ErrorIndex)
		return res
	}
	if len(pkt.Variables) == 0 {
		res.Err = fmt.Errorf("empty snmp response")
		return res
	}

	value, err := FormatPDU(pkt.Variables[0])
	if err != nil {
		res.Err = err
		return res
	}
	res.Value = value
	return res
}

// FormatPDU renders a variable binding as text.
func FormatPDU(pdu gosnmp.SnmpPDU) (string, error) {
	switch pdu.Type {
	case gosnmp.OctetString:
		b, _ := pdu.Value.([]byte)
		return string(b), nil
	case gosnmp.ObjectIdentifier, gosnmp.IPAddress:
		s, _ := pdu.Value.(string)
		return s, nil
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return "", fmt.Errorf("%s: %s", pdu.Name, pdu.Type)
	case gosnmp.Null:
		return "", nil
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Counter64, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).String(), nil
	default:
		return fmt.Sprintf("%v", pdu.Value), nil
	}
}
