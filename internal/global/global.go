package global

import "time"

var (
	Version   string
	StartTime = time.Now()
)
