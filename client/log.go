package client

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package logger used by connections whose
// Configuration carries none.
func SetLogger(l *logrus.Logger) {
	log = l
}

func connectionLogger(l *logrus.Logger) *logrus.Entry {
	return l.WithField("conn", uuid.NewString()[:8])
}
