//go:build windows

package record

import (
	"os"

	"golang.org/x/sys/windows"
)

// systemResolver resolves owners from the file's security descriptor.
// Lookup failures degrade to the session's USERNAME.
type systemResolver struct{}

var _ OwnerResolver = systemResolver{}

func (systemResolver) Owner(path string) (string, error) {
	sd, err := windows.GetNamedSecurityInfo(path,
		windows.SE_FILE_OBJECT, windows.OWNER_SECURITY_INFORMATION)
	if err != nil {
		return fallbackOwner(), nil
	}

	sid, _, err := sd.Owner()
	if err != nil || sid == nil {
		return fallbackOwner(), nil
	}

	account, domain, _, err := sid.LookupAccount("")
	if err != nil {
		return fallbackOwner(), nil
	}

	return domain + `\` + account, nil
}

func fallbackOwner() string {
	if name := os.Getenv("USERNAME"); name != "" {
		return name
	}
	return "unknown"
}
