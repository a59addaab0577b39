//go:build unix

package record

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// systemResolver resolves owners from the file's uid. Username lookup
// failures degrade to the numeric uid string.
type systemResolver struct{}

var _ OwnerResolver = systemResolver{}

func (systemResolver) Owner(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("no unix stat data for %s", path)
	}

	uid := strconv.FormatUint(uint64(stat.Uid), 10)
	u, err := user.LookupId(uid)
	if err != nil {
		return uid, nil
	}
	return u.Username, nil
}
