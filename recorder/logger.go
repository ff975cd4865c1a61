package recorder

import "github.com/sirupsen/logrus"

var (
	log = logrus.WithField("module", "recorder")
)
