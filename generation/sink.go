package generation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/c360/genstream/client"
	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/notify"
)

// Artifact is one downloaded output handed to a PostProcessor
type Artifact struct {
	JobID      string
	Slot       string
	Descriptor client.ArtifactDescriptor
	Data       io.Reader
}

// PostProcessor consumes downloaded artifacts and returns where each ended up
type PostProcessor interface {
	Process(ctx context.Context, artifact Artifact) (string, error)
}

// FileSink writes artifacts under a directory, keeping the backend's
// subfolder, and raises a file-added notification for each file.
type FileSink struct {
	dir      string
	notifier notify.Notifier
}

// NewFileSink creates a FileSink rooted at dir. A nil notifier disables
// notifications.
func NewFileSink(dir string, notifier notify.Notifier) *FileSink {
	return &FileSink{dir: dir, notifier: notifier}
}

// Process copies artifact.Data to dir/subfolder/filename
func (s *FileSink) Process(ctx context.Context, artifact Artifact) (string, error) {
	name := filepath.Base(artifact.Descriptor.Filename)
	if name == "." || name == string(filepath.Separator) {
		return "", errors.WrapInvalid(fmt.Errorf("invalid filename %q", artifact.Descriptor.Filename),
			"FileSink", "Process", "resolve path")
	}
	sub := filepath.Clean(filepath.FromSlash(artifact.Descriptor.Subfolder))
	if sub != "." && !filepath.IsLocal(sub) {
		return "", errors.WrapInvalid(fmt.Errorf("subfolder %q escapes output directory", artifact.Descriptor.Subfolder),
			"FileSink", "Process", "resolve path")
	}

	dir := filepath.Join(s.dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WrapFatal(err, "FileSink", "Process", "create directory")
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", errors.WrapFatal(err, "FileSink", "Process", "create file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, artifact.Data); err != nil {
		tmp.Close()
		return "", errors.WrapTransient(err, "FileSink", "Process", "write file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.WrapFatal(err, "FileSink", "Process", "close file")
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.WrapFatal(err, "FileSink", "Process", "move file into place")
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, notify.Notification{
			Kind:  notify.KindFileAdded,
			JobID: artifact.JobID,
			Path:  path,
			Time:  time.Now(),
		})
	}
	return path, nil
}
