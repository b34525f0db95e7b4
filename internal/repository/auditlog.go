package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Log file names inside the log directory.
const (
	ErrorLogFileName   = "oauth_error.log"
	SuccessLogFileName = "oauth_success.log"
)

// FileAuditLog appends flow outcomes to two plain-text logs, one line per
// event: "<RFC3339 timestamp> - <message>".
type FileAuditLog struct {
	errorPath   string
	successPath string
	mu          sync.Mutex
	logger      *zap.Logger
	now         func() time.Time
}

var _ AuditLog = (*FileAuditLog)(nil)

// NewFileAuditLog binds the audit log to the given directory.
func NewFileAuditLog(logDir string, logger *zap.Logger) *FileAuditLog {
	if logger == nil {
		logger = zap.L()
	}
	return &FileAuditLog{
		errorPath:   filepath.Join(logDir, ErrorLogFileName),
		successPath: filepath.Join(logDir, SuccessLogFileName),
		logger:      logger,
		now:         time.Now,
	}
}

// Failure appends one line to the OAuth error log.
func (l *FileAuditLog) Failure(message string) {
	l.append(l.errorPath, message)
}

// Success appends one line to the OAuth success log.
func (l *FileAuditLog) Success(message string) {
	l.append(l.successPath, message)
}

func (l *FileAuditLog) append(path, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.logger.Error("create log dir", zap.String("path", path), zap.Error(err))
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("open audit log", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s - %s\n", l.now().Format(time.RFC3339), message)
	if _, err := f.WriteString(line); err != nil {
		l.logger.Error("append audit log", zap.String("path", path), zap.Error(err))
	}
}
