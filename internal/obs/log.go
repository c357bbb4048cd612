package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// The request middleware and the audit trail share one stdout writer
// so their JSON lines interleave whole under concurrent load.
var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide logger. No prefix, no flags: every
// line is a self-contained JSON object.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest writes one JSON object per entry. A marshal failure is
// reported in-band instead of dropping the line silently.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"log entry dropped","error":%q}`+"\n", err.Error())
		return
	}
	Logger().Println(string(data))
}
