package simulation

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marquee/tierlist/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends log lines to stdout and to logFile. An empty logFile
// gets a timestamped name.
func SetupLogging(logFile string) (string, error) {
	if logFile == "" {
		logFile = "simulate_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), logger.FormatText); err != nil {
		return "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logFile, nil
}
