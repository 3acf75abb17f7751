package attachments

import "fmt"

// formatSizeHuman renders a byte count the way user-facing attachment
// errors report file sizes (e.g. "4.0 MB").
func formatSizeHuman(sizeBytes int64) string {
	if sizeBytes < 1024 {
		return fmt.Sprintf("%d B", sizeBytes)
	}
	if sizeBytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(sizeBytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(sizeBytes)/(1024*1024))
}
