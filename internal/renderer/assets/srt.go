package assets

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"slidecast/internal/models"
)

// FormatSRTTime renders seconds as HH:MM:SS,mmm. Every component is truncated,
// never rounded.
func FormatSRTTime(seconds float64) string {
	hours := int(math.Floor(seconds / 3600))
	minutes := int(math.Floor(math.Mod(seconds, 3600) / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	millis := int(math.Mod(seconds, 1) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// WriteSRT serializes cues in the given order as SubRip.
func WriteSRT(w io.Writer, cues []models.SubtitleCue) error {
	bw := bufio.NewWriter(w)
	for i, c := range cues {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, FormatSRTTime(c.Start), FormatSRTTime(c.End), cueText(c.Text)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// cueText drops blank lines, which would end a SubRip block early.
func cueText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, strings.TrimRight(l, "\r"))
		}
	}
	return strings.Join(kept, "\n")
}

// WriteSRTFile writes cues to path.
func WriteSRTFile(path string, cues []models.SubtitleCue) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSRT(f, cues); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
