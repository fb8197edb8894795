package system

import (
	"os"
	"os/user"
	"runtime"
)

// Profile describes the host the gatekeeper runs on. The username tags
// audit records; the rest feeds server info and diagnostics.
type Profile struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
	Username string `json:"username"`
}

// Detect builds a best-effort profile; missing fields stay empty rather
// than failing.
func Detect() *Profile {
	p := &Profile{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	if hostname, err := os.Hostname(); err == nil {
		p.Hostname = hostname
	}
	if u, err := user.Current(); err == nil {
		p.Username = u.Username
	}
	return p
}
