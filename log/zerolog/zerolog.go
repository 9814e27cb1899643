// Package zerolog adapts a zerolog.Logger to tabcache.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/tabcache"
)

type Logger struct{ L zerolog.Logger }

var _ tabcache.Logger = Logger{}

func (z Logger) Debug(msg string, f tabcache.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f tabcache.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f tabcache.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f tabcache.Fields) { emit(z.L.Error(), msg, f) }

func emit(e *zerolog.Event, msg string, f tabcache.Fields) {
	for k, v := range f {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
