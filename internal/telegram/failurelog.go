package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"insta-relay/internal/models"
)

const failureLogPrefix = "relay_failures_"

func failureLogName(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s.log", failureLogPrefix, day.Format("2006-01-02")))
}

// logToFile appends an undelivered reply as one JSON line to a daily file.
func (m *BotManager) logToFile(message string, chatID int64, res models.Result) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	f, err := os.OpenFile(failureLogName(m.cfg.FailureLogDir, time.Now()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	logEntry := struct {
		Timestamp string `json:"timestamp"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
		ChatID    int64  `json:"chat_id"`
		Success   bool   `json:"success"`
		ErrorKind string `json:"error_kind,omitempty"`
		Text      string `json:"text"`
	}{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Message:   message,
		RequestID: res.RequestID,
		ChatID:    chatID,
		Success:   res.Success,
		ErrorKind: res.Error,
		Text:      res.Text,
	}
	data, err := json.Marshal(logEntry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

func (m *BotManager) failureLogMaintenance(ctx context.Context) {
	m.cleanupOldFailureLogs(time.Now())

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.cleanupOldFailureLogs(now)
		}
	}
}

// cleanupOldFailureLogs removes daily failure logs older than the retention.
func (m *BotManager) cleanupOldFailureLogs(now time.Time) {
	if m.cfg.FailureLogRetention <= 0 {
		return
	}
	m.logMu.Lock()
	defer m.logMu.Unlock()

	files, err := os.ReadDir(m.cfg.FailureLogDir)
	if err != nil {
		logrus.Warnf("Failed to read failure log directory %s: %v", m.cfg.FailureLogDir, err)
		return
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), failureLogPrefix) {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(file.Name(), failureLogPrefix), ".log")
		fileDate, err := time.ParseInLocation("2006-01-02", dateStr, now.Location())
		if err != nil || now.Sub(fileDate) <= m.cfg.FailureLogRetention {
			continue
		}
		if err := os.Remove(filepath.Join(m.cfg.FailureLogDir, file.Name())); err != nil {
			logrus.Warnf("Failed to remove old failure log %s: %v", file.Name(), err)
			continue
		}
		logrus.Debugf("Removed old failure log %s", file.Name())
	}
}
