package playlist

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/inf/reelbox/internal/store"
)

// WriteM3U renders the videos as an extended M3U playlist. Durations
// are emitted in whole seconds, -1 when unknown.
func WriteM3U(w io.Writer, videos []store.Video) error {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	for _, v := range videos {
		seconds := int64(-1)
		if v.DurationMs > 0 {
			seconds = v.DurationMs / 1000
		}
		buf.WriteString(fmt.Sprintf("#EXTINF:%d,%s\n", seconds, v.Title))
		buf.WriteString(v.Locator + "\n")
	}
	_, err := io.Copy(w, buf)
	return err
}

// ExportFile writes the playlist atomically: the file at path is either
// the previous export or the complete new one, never a partial write.
func ExportFile(path string, videos []store.Video, log zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending playlist file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			log.Debug().Err(err).Msg("cleanup pending playlist file")
		}
	}()

	if err := WriteM3U(pending, videos); err != nil {
		return fmt.Errorf("write playlist data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace playlist file: %w", err)
	}
	return nil
}
