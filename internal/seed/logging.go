package seed

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/sandscore/pkg/logger"
)

// SetupLogging configures logging to stdout and, when logFile is set, to
// that file as well. The returned closer releases the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closer = file
	}
	if err := logger.InitWithWriter(w, logger.FormatText); err != nil {
		return nil, err
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closer, nil
}
