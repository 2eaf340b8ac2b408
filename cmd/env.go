package cmd

import (
	"context"
	"time"

	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
	"github.com/djcass44/pmbuild/pkg/apkindex"
	"github.com/djcass44/pmbuild/pkg/aports"
	"github.com/djcass44/pmbuild/pkg/build"
	"github.com/djcass44/pmbuild/pkg/chroot"
	"github.com/djcass44/pmbuild/pkg/config"
	"github.com/djcass44/pmbuild/pkg/repo"
)

// env holds the components shared by a single invocation. The
// index cache lives exactly as long as the run.
type env struct {
	spec      *v1.WorkspaceSpec
	cache     *apkindex.Cache
	updater   *repo.Updater
	lookup    *apkindex.Lookup
	runner    chroot.Runner
	publisher *build.Publisher
	builder   *build.Builder
}

func newEnv(ctx context.Context) (*env, error) {
	if err := chroot.CheckPrivileges(); err != nil {
		return nil, err
	}
	ws, err := config.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	spec := &ws.Spec

	cache := apkindex.NewCache()
	updater := repo.NewUpdater(spec, cache)
	lookup := apkindex.NewLookup(cache, updater.IndexPaths, nil)
	runner := chroot.NewExec(spec.BuildUser)
	publisher := &build.Publisher{
		Runner:    runner,
		Root:      spec.ChrootNative(),
		Packages:  spec.PackagesDir(""),
		BuildUser: spec.BuildUser,
		Cache:     cache,
		Now:       time.Now,
	}
	return &env{
		spec:      spec,
		cache:     cache,
		updater:   updater,
		lookup:    lookup,
		runner:    runner,
		publisher: publisher,
		builder: &build.Builder{
			Spec:      spec,
			Tree:      aports.NewTree(spec.Aports),
			Lookup:    lookup,
			Runner:    runner,
			Stager:    build.NewStager(spec.BuildUser),
			Publisher: publisher,
		},
	}, nil
}
