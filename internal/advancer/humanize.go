package advancer

import (
	"fmt"
	"os"
	"time"
)

// humanizeDuration renders a duration the way the poll caption needs it:
// the single coarsest unit that fits, pluralized, e.g. "2 minutes", "1 hour".
func humanizeDuration(d time.Duration) string {
	units := []struct {
		name string
		size time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
	}
	for _, u := range units {
		if d >= u.size {
			n := int64(d / u.size)
			if n == 1 {
				return fmt.Sprintf("1 %s", u.name)
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return "0 seconds"
}

func removeFile(path string) error {
	return os.Remove(path)
}
