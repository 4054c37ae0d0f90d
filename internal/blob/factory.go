package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects and constructs a blob store by driver name. An empty driver
// falls back to PLANCORE_BLOB_DRIVER, then to the filesystem driver.
func Open(ctx context.Context, driver string, root string) (Store, error) {
	d := strings.ToLower(strings.TrimSpace(driver))
	if d == "" {
		d = strings.ToLower(strings.TrimSpace(os.Getenv("PLANCORE_BLOB_DRIVER")))
	}
	switch Driver(d) {
	case "", DriverFilesystem:
		if root == "" {
			root = os.Getenv("PLANCORE_BLOB_FS_ROOT")
		}
		return NewFilesystem(root)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", d)
	}
}
