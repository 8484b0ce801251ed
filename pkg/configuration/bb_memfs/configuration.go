package bb_memfs

import (
	"bytes"
	"io"
	"os"

	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

// ApplicationConfiguration contains the options of bb_memfs.
type ApplicationConfiguration struct {
	// Location at which the file system is mounted.
	MountPath string `yaml:"mountPath"`
	// Name of the file system, as shown in /proc/mounts.
	FsName string `yaml:"fsName"`
	// Permit users other than the one running bb_memfs to access
	// the file system.
	AllowOther bool `yaml:"allowOther"`
	// Mount the file system using mount(2), as opposed to
	// fusermount(1).
	DirectMount bool `yaml:"directMount"`

	// Upper bound on the amount of memory used by nodes and file
	// contents. Zero means the amount of physical memory.
	MaximumMemoryBytes int64 `yaml:"maximumMemoryBytes"`
	// Owner of nodes that are created without caller credentials.
	DefaultOwnerUserID  uint32 `yaml:"defaultOwnerUserId"`
	DefaultOwnerGroupID uint32 `yaml:"defaultOwnerGroupId"`

	// Address on which Prometheus metrics and a health check are
	// served. Empty disables the diagnostics HTTP server.
	DiagnosticsHTTPListenAddress string `yaml:"diagnosticsHttpListenAddress"`
}

// GetApplicationConfiguration reads the configuration from file and
// fills in default values.
func GetApplicationConfiguration(path string) (*ApplicationConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to read configuration from %#v", path)
	}
	configuration, err := ParseApplicationConfiguration(data)
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to parse configuration from %#v", path)
	}
	return configuration, nil
}

// ParseApplicationConfiguration decodes a YAML configuration. Unknown
// fields are rejected, so that misspelled options don't go unnoticed.
func ParseApplicationConfiguration(data []byte) (*ApplicationConfiguration, error) {
	var configuration ApplicationConfiguration
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&configuration); err != nil && err != io.EOF {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if configuration.MountPath == "" {
		return nil, status.Error(codes.InvalidArgument, "No mount path specified")
	}
	if configuration.MaximumMemoryBytes < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Maximum memory usage cannot be negative, as %d bytes was provided", configuration.MaximumMemoryBytes)
	}
	setDefaultValues(&configuration)
	return &configuration, nil
}

func setDefaultValues(configuration *ApplicationConfiguration) {
	if configuration.FsName == "" {
		configuration.FsName = "bb_memfs"
	}
}
