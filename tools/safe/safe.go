package safe

import (
	"RentChat/logger"
)

// SafeGo starts a goroutine that recovers from panic,
// so a panicking handler doesn't take the whole gateway down.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
