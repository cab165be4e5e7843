// Package identity reports how this panmix instance names itself.
package identity

import (
	"os"
	"runtime/debug"
	"strings"
)

// DefaultVersion is reported when the binary carries no module version.
const DefaultVersion = "devel"

// DefaultInstance is the mDNS instance name used when the hostname is
// unavailable.
const DefaultInstance = "panmix"

// Info holds identity information advertised to LAN clients.
type Info struct {
	Instance string
	Version  string
}

// Get returns the identity of this process.
func Get() Info {
	return Info{Instance: InstanceName(), Version: Version()}
}

// InstanceName returns "panmix on <host>", using the short hostname.
func InstanceName() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return DefaultInstance
	}
	return instanceFor(h)
}

func instanceFor(hostname string) string {
	short, _, _ := strings.Cut(hostname, ".")
	if short == "" {
		return DefaultInstance
	}
	return DefaultInstance + " on " + short
}

// Version returns the main module version from the build info.
func Version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return DefaultVersion
	}
	return versionFrom(bi)
}

func versionFrom(bi *debug.BuildInfo) string {
	v := bi.Main.Version
	if v == "" || v == "(devel)" {
		return DefaultVersion
	}
	return v
}
