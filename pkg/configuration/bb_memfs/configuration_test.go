package bb_memfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buildbarn/bb-memfs/pkg/configuration/bb_memfs"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestParseApplicationConfiguration(t *testing.T) {
	t.Run("Complete", func(t *testing.T) {
		configuration, err := bb_memfs.ParseApplicationConfiguration([]byte(`
mountPath: /mnt/memfs
fsName: scratch
allowOther: true
directMount: true
maximumMemoryBytes: 1073741824
defaultOwnerUserId: 1000
defaultOwnerGroupId: 100
diagnosticsHttpListenAddress: ":9980"
`))
		require.NoError(t, err)
		require.Equal(t, &bb_memfs.ApplicationConfiguration{
			MountPath:                    "/mnt/memfs",
			FsName:                       "scratch",
			AllowOther:                   true,
			DirectMount:                  true,
			MaximumMemoryBytes:           1 << 30,
			DefaultOwnerUserID:           1000,
			DefaultOwnerGroupID:          100,
			DiagnosticsHTTPListenAddress: ":9980",
		}, configuration)
	})

	t.Run("Defaults", func(t *testing.T) {
		configuration, err := bb_memfs.ParseApplicationConfiguration([]byte("mountPath: /mnt/memfs\n"))
		require.NoError(t, err)
		require.Equal(t, &bb_memfs.ApplicationConfiguration{
			MountPath: "/mnt/memfs",
			FsName:    "bb_memfs",
		}, configuration)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := bb_memfs.ParseApplicationConfiguration(nil)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "No mount path specified"), err)
	})

	t.Run("UnknownField", func(t *testing.T) {
		// Misspelled options should not be ignored silently.
		_, err := bb_memfs.ParseApplicationConfiguration([]byte("mountPath: /mnt/memfs\nmaximumMemory: 100\n"))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
		require.Contains(t, status.Convert(err).Message(), "field maximumMemory not found")
	})

	t.Run("NegativeMemory", func(t *testing.T) {
		_, err := bb_memfs.ParseApplicationConfiguration([]byte("mountPath: /mnt/memfs\nmaximumMemoryBytes: -1\n"))
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Maximum memory usage cannot be negative, as -1 bytes was provided"), err)
	})
}

func TestGetApplicationConfiguration(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bb_memfs.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mountPath: /mnt/memfs\n"), 0o644))
		configuration, err := bb_memfs.GetApplicationConfiguration(path)
		require.NoError(t, err)
		require.Equal(t, "/mnt/memfs", configuration.MountPath)
	})

	t.Run("NonexistentFile", func(t *testing.T) {
		_, err := bb_memfs.GetApplicationConfiguration(filepath.Join(t.TempDir(), "nonexistent.yaml"))
		require.Error(t, err)
	})
}
