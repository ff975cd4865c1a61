package access

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "access")
