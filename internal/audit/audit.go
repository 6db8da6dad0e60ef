package audit

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Actions recorded besides plain requests.
const (
	ActionRegister     = "register"
	ActionLogin        = "login"
	ActionKeyIssue     = "key_issue"
	ActionKeyRotate    = "key_rotate"
	ActionTierChange   = "tier_change"
	ActionLimitsReload = "limits_reload"
)

// LogEntry defines the structured audit log
type LogEntry struct {
	Timestamp time.Time
	ActorID   string
	Action    string // method + path, or one of the Action constants
	Resource  string
	Status    int
	Metadata  map[string]interface{}
}

// Logger interface
type Logger interface {
	Log(entry LogEntry)
}

// JSONLogger writes one JSON object per entry to its writer.
type JSONLogger struct {
	log *logrus.Logger
}

func NewJSONLogger(w io.Writer) *JSONLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{logrus.FieldKeyTime: "timestamp"},
	})
	l.SetLevel(logrus.InfoLevel)
	return &JSONLogger{log: l}
}

func (l *JSONLogger) Log(entry LogEntry) {
	fields := logrus.Fields{
		"actor_id": entry.ActorID,
		"action":   entry.Action,
		"resource": entry.Resource,
		"status":   entry.Status,
	}
	if len(entry.Metadata) > 0 {
		m := make(map[string]interface{}, len(entry.Metadata))
		for k, v := range entry.Metadata {
			m[k] = v
		}
		maskSensitive(m)
		fields["metadata"] = m
	}

	e := l.log.WithFields(fields)
	if !entry.Timestamp.IsZero() {
		e = e.WithTime(entry.Timestamp)
	}
	e.Info("audit")
}

// Event records a governance action that is not tied to one HTTP request.
func Event(l Logger, actor, action string, metadata map[string]interface{}) {
	if l == nil {
		return
	}
	l.Log(LogEntry{
		Timestamp: time.Now(),
		ActorID:   actor,
		Action:    action,
		Metadata:  metadata,
	})
}

func maskSensitive(m map[string]interface{}) {
	sensitiveKeys := []string{"api_key", "api-key", "password", "token", "secret"}
	for k := range m {
		lowerK := strings.ToLower(k)
		for _, s := range sensitiveKeys {
			if strings.Contains(lowerK, s) {
				m[k] = "***REDACTED***"
				break
			}
		}
	}
}
