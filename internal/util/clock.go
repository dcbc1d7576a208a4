package util

import "time"

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant. Tests move it with Set.
type FixedClock struct {
	t time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time      { return c.t }
func (c *FixedClock) Set(t time.Time)     { c.t = t }
func (c *FixedClock) Add(d time.Duration) { c.t = c.t.Add(d) }
