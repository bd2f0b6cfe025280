package testutil

import (
	"io"
	"os"

	"github.com/TheMichaelB/migrator/internal/events"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", io.Discard)
}

// NewCapturingLogger creates a json logger whose entries are captured.
func NewCapturingLogger() (*events.Logger, *LogOutput) {
	out := NewLogOutput()
	return events.NewTestLogger(events.DebugLevel, "json", out), out
}

// HomeFile describes a file of a sample installation.
type HomeFile struct {
	Path    string
	Content string
	Mode    os.FileMode
}

// SampleHome is the file tree used by round trip tests.
var SampleHome = []HomeFile{
	{Path: "etc/custom.system.properties", Content: "ddf.home=.\nkeystore=etc/keystores/serverKeystore.jks\n", Mode: 0644},
	{Path: "etc/users.properties", Content: "admin=admin,group,admin\n", Mode: 0600},
	{Path: "etc/keystores/serverKeystore.jks", Content: "keystore-bytes", Mode: 0444},
	{Path: "etc/certs/1.pem", Content: "cert-one", Mode: 0644},
	{Path: "etc/certs/2.pem", Content: "cert-two", Mode: 0444},
	{Path: "etc/certs/sub/3.pem", Content: "cert-three", Mode: 0640},
	{Path: "Version.txt", Content: "1.0\n", Mode: 0644},
}
