package main

import (
	"context"
	"log"
	"net/http"

	"github.com/buildbarn/bb-memfs/pkg/configuration/bb_memfs"
	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs/fuse"
	"github.com/buildbarn/bb-storage/pkg/program"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// bb_memfs mounts an in-memory file system through FUSE. All data is
// lost when the process terminates. The amount of memory that may be
// consumed by file contents and metadata can be bounded, causing
// writes to fail with ENOSPC when exhausted.

func main() {
	program.RunMain(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		debug := pflag.Bool("debug", false, "Log all FUSE requests and responses")
		pflag.Parse()
		if pflag.NArg() != 1 {
			return status.Error(codes.InvalidArgument, "Usage: bb_memfs [--debug] bb_memfs.yaml")
		}
		configuration, err := bb_memfs.GetApplicationConfiguration(pflag.Arg(0))
		if err != nil {
			return err
		}

		registry := memfs.NewRegistry(otel.GetTracerProvider())
		if err := registry.Register(memfs.MemoryFileSystemType); err != nil {
			return err
		}
		mount, err := registry.Mount(ctx, memfs.MemoryFileSystemType.Name(), memfs.MountOptions{
			MemoryAllocator: memfs.NewMetricsMemoryAllocator(
				memfs.NewMemoryAllocator(configuration.MaximumMemoryBytes)),
			DefaultCredentials: memfs.Credentials{
				UserID:  configuration.DefaultOwnerUserID,
				GroupID: configuration.DefaultOwnerGroupID,
			},
		})
		if err != nil {
			return util.StatusWrap(err, "Failed to create in-memory file system")
		}

		server, err := fuse.Mount(mount.MountRoot(), &fuse.MountConfiguration{
			MountPath:   configuration.MountPath,
			FsName:      configuration.FsName,
			AllowOther:  configuration.AllowOther,
			DirectMount: configuration.DirectMount,
			Debug:       *debug,
		})
		if err != nil {
			mount.Unmount(ctx)
			return err
		}
		siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			fuse.UnmountOnCancel(ctx, server, mount, util.DefaultErrorLogger)
			return nil
		})

		// Web server for metrics and health checks.
		if listenAddress := configuration.DiagnosticsHTTPListenAddress; listenAddress != "" {
			router := mux.NewRouter()
			router.Handle("/metrics", promhttp.Handler())
			router.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			httpServer := &http.Server{
				Addr:    listenAddress,
				Handler: router,
			}
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				<-ctx.Done()
				return httpServer.Close()
			})
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				log.Printf("Serving diagnostics on %s", listenAddress)
				if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
					return util.StatusWrap(err, "Diagnostics HTTP server failure")
				}
				return nil
			})
		}
		return nil
	})
}
