// Copyright 2026 The Pagecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pagecast

import (
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
)

// EncoderManager builds and starts the capture/encode pipeline: an
// x11grab of the display muxed with a silent audio track, encoded to
// H.264/AAC, and published to the RTMP target as FLV.  The encoder's
// stderr is handed back untouched; the health monitor owns it from
// there, since ffmpeg reports transport faults only as diagnostic
// text on that stream.
type EncoderManager struct {
	bin    string
	logger *log.Logger
}

func NewEncoderManager(cfg Config, logger *log.Logger) *EncoderManager {
	return &EncoderManager{
		bin:    cfg.EncoderBin,
		logger: logger,
	}
}

// ResolveTarget maps a caller supplied stream target to the URL the
// encoder publishes to.  A target that is already a full rtmp:// URL
// is used verbatim; anything else is treated as a stream key on the
// default ingest endpoint.
func ResolveTarget(target, ingest string) string {
	if strings.HasPrefix(target, "rtmp://") {
		return target
	}
	return ingest + target
}

// Start launches the encoder publishing the display to target.  The
// returned reader is the encoder's stderr.
func (em *EncoderManager) Start(display string, width, height, frameRate int, target string) (*ManagedProcess, io.ReadCloser, error) {
	cmd := exec.Command(em.bin, encoderArgs(display, width, height, frameRate, target)...)

	stderr, e := cmd.StderrPipe()
	if e != nil {
		return nil, nil, fmt.Errorf("capturing encoder diagnostics: %w", e)
	}
	if e := cmd.Start(); e != nil {
		return nil, nil, fmt.Errorf("starting encoder: %w", e)
	}
	em.logger.Printf("Encoder started (pid %d), publishing %s",
		cmd.Process.Pid, target)

	mp := &ManagedProcess{
		kind: KindEncoder,
		pid:  cmd.Process.Pid,
		kill: cmd.Process.Kill,
		wait: cmd.Wait,
	}
	return mp, stderr, nil
}

func encoderArgs(display string, width, height, frameRate int, target string) []string {
	return []string{
		"-f", "x11grab",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.Itoa(frameRate),
		"-draw_mouse", "0",
		"-i", display,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", "3000k",
		"-maxrate", "3000k",
		"-bufsize", "6000k",
		"-pix_fmt", "yuv420p",
		// One keyframe every two seconds; RTMP ingests key on it.
		"-g", strconv.Itoa(frameRate * 2),
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-f", "flv",
		target,
	}
}
