package sideload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chainguard.dev/apko/pkg/apk/apk"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
	"github.com/djcass44/pmbuild/pkg/remote"
)

type fakeLookup map[string]string

func (f fakeLookup) Package(_ context.Context, name, _ string) (*apk.Package, error) {
	v, ok := f[name]
	if !ok {
		return nil, nil
	}
	return &apk.Package{Name: name, Version: v}, nil
}

// providerLookup answers every query with the same package,
// whatever name was asked for.
type providerLookup apk.Package

func (f *providerLookup) Package(context.Context, string, string) (*apk.Package, error) {
	pkg := apk.Package(*f)
	return &pkg, nil
}

type fakeBuilder struct {
	built   []string
	produce func(name string)
}

func (f *fakeBuilder) Build(_ context.Context, name, _ string, force bool) error {
	if !force {
		return nil
	}
	f.built = append(f.built, name)
	if f.produce != nil {
		f.produce(name)
	}
	return nil
}

// fakeTransport records every remote interaction. Operations
// for which fail returns an error are recorded and then fail.
type fakeTransport struct {
	ops  []string
	fail func(op string) error
}

func (f *fakeTransport) Copy(_ context.Context, target remote.Target, files []string, dir string) error {
	names := make([]string, len(files))
	for i := range files {
		names[i] = filepath.Base(files[i])
	}
	return f.record("scp " + strings.Join(names, " ") + " " + target.String() + ":" + dir)
}

func (f *fakeTransport) Run(_ context.Context, target remote.Target, script string) error {
	return f.record("ssh " + target.String() + " " + script)
}

func (f *fakeTransport) record(op string) error {
	f.ops = append(f.ops, op)
	if f.fail != nil {
		return f.fail(op)
	}
	return nil
}

func newSpec(t *testing.T) *v1.WorkspaceSpec {
	return &v1.WorkspaceSpec{
		Work:       t.TempDir(),
		Channel:    "edge",
		NativeArch: "x86_64",
	}
}

func touch(t *testing.T, path string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, nil, 0644))
}

var target = remote.Target{User: "user", Host: "172.16.42.1", Port: "22"}

func TestPipeline_Run(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	t.Run("reinstall without key", func(t *testing.T) {
		spec := newSpec(t)
		touch(t, filepath.Join(spec.PackagesDir("armv7"), "bar-2.0-r0.apk"))
		touch(t, filepath.Join(spec.PackagesDir("armv7"), "baz-1.0-r0.apk"))

		builder := &fakeBuilder{}
		transport := &fakeTransport{}
		p := &Pipeline{
			Spec:      spec,
			Lookup:    fakeLookup{"bar": "2.0-r0", "baz": "1.0-r0"},
			Builder:   builder,
			Transport: transport,
		}
		err := p.Run(ctx, Request{
			Packages:  []string{"bar", "baz"},
			Arch:      "armv7",
			Reinstall: true,
			Target:    target,
		})
		require.NoError(t, err)
		assert.Empty(t, builder.built)
		assert.EqualValues(t, []string{
			"ssh user@172.16.42.1 sudo -p '[sudo] password for %u@%h: ' -S apk del bar baz",
			"scp bar-2.0-r0.apk baz-1.0-r0.apk user@172.16.42.1:/tmp",
			"ssh user@172.16.42.1 sudo -p '[sudo] password for %u@%h: ' -S apk add /tmp/bar-2.0-r0.apk /tmp/baz-1.0-r0.apk; rm /tmp/bar-2.0-r0.apk /tmp/baz-1.0-r0.apk",
		}, transport.ops)
	})

	t.Run("unbuildable package fails before contacting the device", func(t *testing.T) {
		spec := newSpec(t)
		touch(t, filepath.Join(spec.PackagesDir("x86_64"), "bar-2.0-r0.apk"))

		builder := &fakeBuilder{}
		transport := &fakeTransport{}
		p := &Pipeline{
			Spec:      spec,
			Lookup:    fakeLookup{"bar": "2.0-r0", "baz": "1.0-r0"},
			Builder:   builder,
			Transport: transport,
		}
		err := p.Run(ctx, Request{
			Packages:  []string{"bar", "baz"},
			CopyKey:   true,
			Reinstall: true,
			Target:    target,
		})
		assert.ErrorIs(t, err, ErrNotBuilt)
		assert.EqualValues(t, []string{"baz"}, builder.built)
		assert.Empty(t, transport.ops)
	})

	t.Run("missing package is built", func(t *testing.T) {
		spec := newSpec(t)

		builder := &fakeBuilder{produce: func(name string) {
			touch(t, filepath.Join(spec.PackagesDir("x86_64"), name+"-1.0-r0.apk"))
		}}
		transport := &fakeTransport{}
		p := &Pipeline{
			Spec:      spec,
			Lookup:    fakeLookup{"baz": "1.0-r0"},
			Builder:   builder,
			Transport: transport,
		}
		err := p.Run(ctx, Request{
			Packages: []string{"baz"},
			Target:   target,
		})
		require.NoError(t, err)
		assert.EqualValues(t, []string{"baz"}, builder.built)
		assert.Len(t, transport.ops, 2)
	})

	t.Run("session failure stops the pipeline", func(t *testing.T) {
		spec := newSpec(t)
		touch(t, filepath.Join(spec.PackagesDir("x86_64"), "bar-2.0-r0.apk"))

		transport := &fakeTransport{fail: func(op string) error {
			if strings.Contains(op, "apk del") {
				return fmt.Errorf("%w: ssh: exit status 255", remote.ErrSession)
			}
			return nil
		}}
		p := &Pipeline{
			Spec:      spec,
			Lookup:    fakeLookup{"bar": "2.0-r0"},
			Builder:   &fakeBuilder{},
			Transport: transport,
		}
		err := p.Run(ctx, Request{Packages: []string{"bar"}, Reinstall: true, Target: target})
		assert.ErrorIs(t, err, remote.ErrSession)
		require.Len(t, transport.ops, 1)
		assert.Contains(t, transport.ops[0], "apk del bar")
		for _, op := range transport.ops {
			assert.NotContains(t, op, "scp ")
			assert.NotContains(t, op, "apk add")
		}
	})

	t.Run("provided package uses the requested name", func(t *testing.T) {
		spec := newSpec(t)
		touch(t, filepath.Join(spec.PackagesDir("x86_64"), "bar-2.0-r0.apk"))

		builder := &fakeBuilder{}
		transport := &fakeTransport{}
		p := &Pipeline{
			Spec:      spec,
			Lookup:    &providerLookup{Name: "bar-compat", Version: "2.0-r0"},
			Builder:   builder,
			Transport: transport,
		}
		err := p.Run(ctx, Request{Packages: []string{"bar"}, Target: target})
		require.NoError(t, err)
		assert.Empty(t, builder.built)
		assert.EqualValues(t, []string{
			"scp bar-2.0-r0.apk user@172.16.42.1:/tmp",
			"ssh user@172.16.42.1 sudo -p '[sudo] password for %u@%h: ' -S apk add /tmp/bar-2.0-r0.apk; rm /tmp/bar-2.0-r0.apk",
		}, transport.ops)
	})

	t.Run("unknown package", func(t *testing.T) {
		p := &Pipeline{
			Spec:      newSpec(t),
			Lookup:    fakeLookup{},
			Builder:   &fakeBuilder{},
			Transport: &fakeTransport{},
		}
		err := p.Run(ctx, Request{Packages: []string{"nope"}, Target: target})
		assert.ErrorIs(t, err, ErrNotIndexed)
	})
}

func TestPipeline_RunCopyKey(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	spec := newSpec(t)
	touch(t, filepath.Join(spec.PackagesDir("x86_64"), "bar-2.0-r0.apk"))

	transport := &fakeTransport{}
	p := &Pipeline{
		Spec:      spec,
		Lookup:    fakeLookup{"bar": "2.0-r0"},
		Builder:   &fakeBuilder{},
		Transport: transport,
	}

	t.Run("no key", func(t *testing.T) {
		err := p.Run(ctx, Request{Packages: []string{"bar"}, CopyKey: true, Target: target})
		assert.ErrorIs(t, err, ErrNoKey)
		assert.Empty(t, transport.ops)
	})

	t.Run("key is trusted before anything else", func(t *testing.T) {
		touch(t, filepath.Join(spec.KeysDir(), "pmos@local-5f3a.rsa.pub"))
		touch(t, filepath.Join(spec.KeysDir(), "pmos@local-5f3a.rsa"))

		err := p.Run(ctx, Request{Packages: []string{"bar"}, CopyKey: true, Reinstall: true, Target: target})
		require.NoError(t, err)
		require.Len(t, transport.ops, 5)
		assert.EqualValues(t, "scp pmos@local-5f3a.rsa.pub user@172.16.42.1:/tmp", transport.ops[0])
		assert.EqualValues(t, "ssh user@172.16.42.1 sudo -p '[sudo] password for %u@%h: ' -S mv -n /tmp/pmos@local-5f3a.rsa.pub /etc/apk/keys/", transport.ops[1])
		assert.Contains(t, transport.ops[2], "apk del bar")
	})
}
