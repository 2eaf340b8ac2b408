package v1

import (
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	Kind       = "Workspace"
	APIVersion = "pmbuild.dcas.dev/v1"
)

type WorkspaceSpec struct {
	// Work is the work directory holding chroots, packages and caches.
	Work string `json:"work,omitempty"`
	// Aports is the checkout of the package source tree.
	Aports     string       `json:"aports,omitempty"`
	Channel    string       `json:"channel,omitempty"`
	BuildUser  string       `json:"buildUser,omitempty"`
	NativeArch string       `json:"nativeArch,omitempty"`
	Jobs       string       `json:"jobs,omitempty"`
	CcacheSize string       `json:"ccacheSize,omitempty"`
	Mirrors    []Repository `json:"mirrors,omitempty"`
	Device     string       `json:"device,omitempty"`
	Sideload   SideloadSpec `json:"sideload,omitempty"`
	Netboot    NetbootSpec  `json:"netboot,omitempty"`
}

type Repository struct {
	URL string `json:"url"`
}

type SideloadSpec struct {
	User string `json:"user,omitempty"`
	Host string `json:"host,omitempty"`
	Port string `json:"port,omitempty"`
}

type NetbootSpec struct {
	IP        string `json:"ip,omitempty"`
	Port      int    `json:"port,omitempty"`
	ProbePort int    `json:"probePort,omitempty"`
}

type Workspace struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec WorkspaceSpec `json:"spec"`
}

// PackagesDir returns the channel repository root, or the
// repository of a single architecture when arch is set.
func (s *WorkspaceSpec) PackagesDir(arch string) string {
	dir := filepath.Join(s.Work, "packages", s.Channel)
	if arch == "" {
		return dir
	}
	return filepath.Join(dir, arch)
}

// ChrootNative returns the host path of the native chroot.
func (s *WorkspaceSpec) ChrootNative() string {
	return filepath.Join(s.Work, "chroot_native")
}

// ChrootBuildroot returns the host path of the chroot used to
// build packages for arch.
func (s *WorkspaceSpec) ChrootBuildroot(arch string) string {
	if arch == "" || arch == s.NativeArch {
		return s.ChrootNative()
	}
	return filepath.Join(s.Work, "chroot_buildroot_"+arch)
}

func (s *WorkspaceSpec) KeysDir() string {
	return filepath.Join(s.Work, "config_abuild")
}

func (s *WorkspaceSpec) MirrorCacheDir(arch string) string {
	return filepath.Join(s.Work, "cache_apk_"+arch)
}

func (s *WorkspaceSpec) CcacheDir(arch string) string {
	return filepath.Join(s.Work, "cache_ccache_"+arch)
}
