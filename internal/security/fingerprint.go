package security

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// Well-known files the device probe reads, relative to the filesystem root.
const (
	dmiProductName = "sys/class/dmi/id/product_name"
	dmiSysVendor   = "sys/class/dmi/id/sys_vendor"
	osRelease      = "etc/os-release"
	kernelRelease  = "proc/sys/kernel/osrelease"
	machineID      = "etc/machine-id"
)

// DeviceProbe collects the DeviceInfo snapshot sent with every license
// request. Missing sources degrade to runtime values rather than failing.
type DeviceProbe struct {
	root     fs.FS
	hostname func() (string, error)
	goos     string

	fpOnce      sync.Once
	fingerprint string
}

// NewDeviceProbe returns a probe reading the real host
func NewDeviceProbe() *DeviceProbe {
	return NewDeviceProbeFS(os.DirFS("/"), os.Hostname)
}

// NewDeviceProbeFS returns a probe reading from root
func NewDeviceProbeFS(root fs.FS, hostname func() (string, error)) *DeviceProbe {
	return &DeviceProbe{root: root, hostname: hostname, goos: runtime.GOOS}
}

// Snapshot returns a fresh DeviceInfo for one request
func (p *DeviceProbe) Snapshot() domain.DeviceInfo {
	host := p.host()

	model := p.readLine(dmiProductName)
	if model == "" {
		model = host
	}

	manufacturer := p.readLine(dmiSysVendor)
	if manufacturer == "" {
		manufacturer = runtime.GOARCH
	}

	version := p.osVersion()
	if version == "" {
		version = p.goos
	}

	build := p.readLine(kernelRelease)
	if build == "" {
		build = runtime.Version()
	}

	return domain.DeviceInfo{
		Model:        model,
		Device:       host,
		Manufacturer: manufacturer,
		Version:      version,
		SDK:          build,
	}
}

// DeviceName is the display name sent as device_name
func (p *DeviceProbe) DeviceName() string {
	return p.Snapshot().Model
}

// Fingerprint is a stable per-machine identifier. It is computed once.
func (p *DeviceProbe) Fingerprint() string {
	p.fpOnce.Do(func() {
		parts := []string{p.readLine(machineID), p.host(), primaryMAC(), p.goos}
		sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
		p.fingerprint = hex.EncodeToString(sum[:])
	})
	return p.fingerprint
}

func (p *DeviceProbe) host() string {
	if p.hostname == nil {
		return "unknown"
	}
	h, err := p.hostname()
	h = strings.TrimSpace(h)
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

func (p *DeviceProbe) readLine(name string) string {
	if p.root == nil {
		return ""
	}
	data, err := fs.ReadFile(p.root, name)
	if err != nil {
		return ""
	}
	line, _, _ := bytes.Cut(data, []byte("\n"))
	return strings.TrimSpace(string(line))
}

// osVersion reads VERSION_ID (or VERSION) from os-release
func (p *DeviceProbe) osVersion() string {
	if p.root == nil {
		return ""
	}
	data, err := fs.ReadFile(p.root, osRelease)
	if err != nil {
		return ""
	}

	fields := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
	}

	if v := fields["VERSION_ID"]; v != "" {
		return v
	}
	return fields["VERSION"]
}

// primaryMAC returns the first non-loopback hardware address, or ""
func primaryMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	return ""
}
