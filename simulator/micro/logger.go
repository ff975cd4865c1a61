package micro

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "micro")
