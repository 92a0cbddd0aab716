package timingsync

import (
	"context"
	"fmt"
	"os/exec"
)

// RemuxVideo replaces videoPath's audio track with audioPath's, copying the
// video stream untouched and trimming to the shorter of the two, mirroring
// the original pipeline's `ffmpeg -map 0:v:0 -map 1:a:0 -shortest` call.
func RemuxVideo(ctx context.Context, videoPath, audioPath, outPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg remux: %w: %s", err, out)
	}
	return nil
}
