package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drone/envsubst"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/yaml"

	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
)

var ErrNoWorkspace = errors.New("no workspace in context")

// Defaults are used for any field that neither the configuration
// file nor the command line sets.
var Defaults = v1.WorkspaceSpec{
	Channel:    "edge",
	BuildUser:  "pmos",
	NativeArch: "x86_64",
	Jobs:       "4",
	CcacheSize: "5G",
	Sideload: v1.SideloadSpec{
		User: "user",
		Host: "172.16.42.1",
		Port: "22",
	},
	Netboot: v1.NetbootSpec{
		IP:        "172.16.42.2",
		Port:      9999,
		ProbePort: 9998,
	},
}

// Load reads a workspace configuration file and merges it with
// the Defaults. A missing path yields the defaults alone.
func Load(ctx context.Context, path string) (*v1.Workspace, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path)

	ws := &v1.Workspace{}
	if path != "" {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			log.Error(err, "failed to open configuration file")
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewYAMLOrJSONDecoder(f, 4).Decode(ws); err != nil {
			log.Error(err, "failed to decode configuration file")
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		log.V(1).Info("loaded configuration file", "name", ws.Name)
	}
	ws.Kind = v1.Kind
	ws.APIVersion = v1.APIVersion

	Merge(&ws.Spec, Defaults)
	if err := expand(&ws.Spec); err != nil {
		return nil, err
	}
	if ws.Spec.Work == "" {
		d, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locating default work dir: %w", err)
		}
		ws.Spec.Work = filepath.Join(d, "pmbuild")
	}
	return ws, nil
}

// Merge fills every empty field of dst with the matching field
// of src. Values already set in dst take precedence.
func Merge(dst *v1.WorkspaceSpec, src v1.WorkspaceSpec) {
	setString(&dst.Work, src.Work)
	setString(&dst.Aports, src.Aports)
	setString(&dst.Channel, src.Channel)
	setString(&dst.BuildUser, src.BuildUser)
	setString(&dst.NativeArch, src.NativeArch)
	setString(&dst.Jobs, src.Jobs)
	setString(&dst.CcacheSize, src.CcacheSize)
	setString(&dst.Device, src.Device)
	setString(&dst.Sideload.User, src.Sideload.User)
	setString(&dst.Sideload.Host, src.Sideload.Host)
	setString(&dst.Sideload.Port, src.Sideload.Port)
	setString(&dst.Netboot.IP, src.Netboot.IP)
	if dst.Netboot.Port == 0 {
		dst.Netboot.Port = src.Netboot.Port
	}
	if dst.Netboot.ProbePort == 0 {
		dst.Netboot.ProbePort = src.Netboot.ProbePort
	}
	if len(dst.Mirrors) == 0 {
		dst.Mirrors = append([]v1.Repository(nil), src.Mirrors...)
	}
}

func setString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func expand(s *v1.WorkspaceSpec) error {
	for _, p := range []*string{&s.Work, &s.Aports, &s.Device} {
		val, err := ExpandEnv(*p)
		if err != nil {
			return err
		}
		*p = val
	}
	for i := range s.Mirrors {
		val, err := ExpandEnv(s.Mirrors[i].URL)
		if err != nil {
			return err
		}
		s.Mirrors[i].URL = val
	}
	return nil
}

// ExpandEnv substitutes environment variables in s using
// shell-style ${VAR} syntax.
func ExpandEnv(s string) (string, error) {
	val, err := envsubst.EvalEnv(s)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", s, err)
	}
	return val, nil
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying ws.
func NewContext(ctx context.Context, ws *v1.Workspace) context.Context {
	return context.WithValue(ctx, contextKey{}, ws)
}

// FromContext returns the workspace stored in ctx by NewContext.
func FromContext(ctx context.Context) (*v1.Workspace, error) {
	ws, ok := ctx.Value(contextKey{}).(*v1.Workspace)
	if !ok || ws == nil {
		return nil, ErrNoWorkspace
	}
	return ws, nil
}
