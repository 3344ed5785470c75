// Package platform classifies target triples such as "x86_64-pc-windows-msvc"
// into the handful of predicates the rest of the build needs.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

type OS string

const (
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
	OSAndroid OS = "android"
	OSBSD     OS = "bsd"
	OSOther   OS = "other"
)

type ABI string

const (
	ABIMSVC  ABI = "msvc"
	ABIGNU   ABI = "gnu"
	ABIOther ABI = "other"
)

type Vendor string

const (
	VendorApple   Vendor = "apple"
	VendorPC      Vendor = "pc"
	VendorUnknown Vendor = "unknown"
	VendorOther   Vendor = "other"
)

// Triple is the classified form of a target triple. The zero value
// classifies as "other" on every axis.
type Triple struct {
	Raw    string
	OS     OS
	ABI    ABI
	Vendor Vendor

	freebsd bool
	openbsd bool
}

// Parse classifies raw. It never fails: anything it does not recognize
// falls back to the "other" variants.
func Parse(raw string) Triple {
	t := Triple{
		Raw:    raw,
		OS:     OSOther,
		ABI:    ABIOther,
		Vendor: VendorOther,
	}

	s := strings.ToLower(raw)

	switch {
	case strings.Contains(s, "apple"):
		t.Vendor = VendorApple
	case strings.Contains(s, "-pc-"):
		t.Vendor = VendorPC
	case strings.Contains(s, "-unknown-"):
		t.Vendor = VendorUnknown
	}

	// android must win over linux: "aarch64-linux-android"
	switch {
	case strings.Contains(s, "android"):
		t.OS = OSAndroid
	case strings.Contains(s, "darwin"), strings.Contains(s, "macos"):
		t.OS = OSMacOS
	case strings.Contains(s, "window"):
		t.OS = OSWindows
	case strings.Contains(s, "linux"):
		t.OS = OSLinux
	case strings.Contains(s, "freebsd"):
		t.OS, t.freebsd = OSBSD, true
	case strings.Contains(s, "openbsd"):
		t.OS, t.openbsd = OSBSD, true
	case strings.Contains(s, "netbsd"), strings.Contains(s, "dragonfly"):
		t.OS = OSBSD
	}

	switch {
	case strings.Contains(s, "msvc"):
		t.ABI = ABIMSVC
	case strings.Contains(s, "gnu"):
		t.ABI = ABIGNU
	}

	return t
}

func (t Triple) String() string {
	if t.Raw != "" {
		return t.Raw
	}
	return fmt.Sprintf("%s-%s-%s", t.Vendor, t.OS, t.ABI)
}

// IsApple reports whether the triple names an Apple vendor. iOS and tvOS
// triples are Apple but not macOS.
func (t Triple) IsApple() bool { return t.Vendor == VendorApple }

func (t Triple) IsMSVCLike() bool { return t.ABI == ABIMSVC }

func (t Triple) IsWindows() bool { return t.OS == OSWindows }

// IsWindowsNonGNU is true for Windows targets built by a toolchain that lays
// multi-config outputs under a per-configuration directory.
func (t Triple) IsWindowsNonGNU() bool { return t.IsWindows() && t.ABI != ABIGNU }

func (t Triple) IsFreeBSD() bool { return t.freebsd }

func (t Triple) IsOpenBSD() bool { return t.openbsd }

// CXXRuntime returns the C++ runtime library the static archive needs, or
// false when the toolchain links it implicitly.
func (t Triple) CXXRuntime() (string, bool) {
	switch {
	case t.IsMSVCLike():
		return "", false
	case t.IsApple(), t.OS == OSMacOS, t.IsFreeBSD(), t.IsOpenBSD():
		return "c++", true
	case t.OS == OSAndroid:
		return "c++_shared", true
	default:
		return "stdc++", true
	}
}

// PathListSeparator is the separator used when joining search paths for the
// target, independent of the host running the build.
func (t Triple) PathListSeparator() string {
	if t.IsWindows() {
		return ";"
	}
	return ":"
}

var archNames = map[string]string{
	"amd64":   "x86_64",
	"386":     "i686",
	"arm64":   "aarch64",
	"arm":     "armv7",
	"ppc64le": "powerpc64le",
	"riscv64": "riscv64gc",
	"s390x":   "s390x",
}

// HostTriple is the triple of the machine running this process.
func HostTriple() string {
	return tripleFor(runtime.GOOS, runtime.GOARCH)
}

func tripleFor(goos, goarch string) string {
	arch, ok := archNames[goarch]
	if !ok {
		arch = goarch
	}

	switch goos {
	case "darwin":
		return arch + "-apple-darwin"
	case "ios":
		return arch + "-apple-ios"
	case "windows":
		return arch + "-pc-windows-msvc"
	case "android":
		return arch + "-linux-android"
	case "linux":
		return arch + "-unknown-linux-gnu"
	default:
		return arch + "-unknown-" + goos
	}
}
