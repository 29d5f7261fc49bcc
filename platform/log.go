package platform

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hook mirrors every entry into a per-day log file, switching files when the
// date changes.
type Hook struct {
	mu       sync.Mutex
	writer   *os.File
	logPath  string
	fileName string
	fileDate string
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	today := entry.Time.Format("2006-01-02")
	if h.fileDate != today || h.writer == nil {
		writer, err := openLogFile(h.logPath, h.fileName, today)
		if err != nil {
			return err
		}
		if h.writer != nil {
			h.writer.Close()
		}
		h.writer = writer
		h.fileDate = today
	}
	_, err = h.writer.Write([]byte(line))
	return err
}

type LogFormatter struct{}

func (m *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	msg := entry.Message
	if component, ok := entry.Data["component"]; ok {
		msg = fmt.Sprintf("(%v) %s", component, msg)
	}
	b.WriteString(fmt.Sprintf("[%s] [%s] %s\n", timestamp, entry.Level, msg))
	return b.Bytes(), nil
}

func openLogFile(logPath, fileName, date string) (*os.File, error) {
	if err := os.MkdirAll(logPath, os.ModePerm); err != nil {
		return nil, err
	}
	name := filepath.Join(logPath, fmt.Sprintf("%s-%s.log", date, fileName))
	return os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
}

// Logger is the application logger. It writes to stderr until InitAppLogger
// attaches the daily file hook.
var Logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&LogFormatter{})
	logger.SetOutput(out)
	return logger
}

// InitAppLogger routes Logger (and the logrus standard logger used by gin
// middleware) to stderr plus a rotating file under logPath.
func InitAppLogger(logPath string, fileName string, level logrus.Level) error {
	today := time.Now().Format("2006-01-02")
	writer, err := openLogFile(logPath, fileName, today)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	hook := &Hook{
		writer:   writer,
		logPath:  logPath,
		fileName: fileName,
		fileDate: today,
	}
	for _, l := range []*logrus.Logger{Logger, logrus.StandardLogger()} {
		l.SetFormatter(&LogFormatter{})
		l.SetLevel(level)
		l.AddHook(hook)
	}
	return nil
}
