package archive

import "fmt"

var byteUnits = []string{
	"bytes",
	"KiB",
	"MiB",
	"GiB",
	"TiB",
}

// FormatBytes returns the passed bytes as a human readable string
func FormatBytes(bytes float64) string {
	size := 0
	for size < len(byteUnits)-1 {
		if bytes < 1024 {
			break
		}

		bytes /= 1024
		size++
	}

	return fmt.Sprintf("%.2f %s", bytes, byteUnits[size])
}
