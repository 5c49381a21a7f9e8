package service

import "time"

// Timer is a cancellable delayed task.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The processor never sleeps; every wait goes through here.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler is backed by time.AfterFunc.
var SystemScheduler Scheduler = systemScheduler{}
