package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// BootBanner prints a one-shot plaintext startup banner via logrus before
// the zerolog structured logger takes over for steady-state operation —
// the supervisor entrypoint is the one place in this repo that wants a
// human-skimmable boot line rather than a JSON/console structured record.
func BootBanner(component, identity, version string) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stdout)
	l.WithFields(logrus.Fields{
		"component": component,
		"identity":  identity,
		"version":   version,
	}).Info("starting")
}
