package config

import (
	"io"
	"os"
	"testing"

	"github.com/google/logger"
)

func TestMain(m *testing.M) {
	l := logger.Init("config-test", false, false, io.Discard)
	code := m.Run()
	l.Close()
	os.Exit(code)
}
