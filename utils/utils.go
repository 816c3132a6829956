package utils

import (
	"encoding/json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"strconv"
	"strings"
	"time"
)

func IntFromString(s string, defaultValue int) int {
	atoi, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return atoi
}

func MillisFromString(s string, defaultValue int) time.Duration {
	return time.Duration(IntFromString(s, defaultValue)) * time.Millisecond
}

// NewID returns a time-ordered UUID string.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func ToJson(value any) []byte {
	jsonResp, err := json.Marshal(value)
	if err != nil {
		log.Errorf("Error happened in JSON marshal. Err: %s", err)
	}
	return jsonResp
}

// Recoverer runs f and restarts it in a new goroutine whenever it panics, at
// most maxPanics times.
func Recoverer(maxPanics int, name string, f func()) {
	defer func() {
		if err := recover(); err != nil {
			log.WithField("task", name).Errorf("Recovered from panic: %v", err)
			if maxPanics == 0 {
				panic("too many panics in " + name)
			} else {
				go Recoverer(maxPanics-1, name, f)
			}
		}
	}()
	f()
}
