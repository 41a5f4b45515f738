package fakehost

import (
	"strings"

	"github.com/google/uuid"
)

const ecTokenLength = 17

// GenerateECToken returns a checkout token shaped like the remote host's:
// "EC-" followed by 17 upper-case alphanumerics.
func GenerateECToken() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "EC-" + raw[:ecTokenLength]
}
