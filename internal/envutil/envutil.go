package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode, where cookies may be
// issued without the Secure attribute so plain-http test domains work
func IsDev() bool {
	env := strings.ToLower(os.Getenv("CDSSO_ENV"))
	return env == "development" || env == "dev"
}
