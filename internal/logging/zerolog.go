package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Zerolog adapts a zerolog.Logger to the Logger interface, pairing args
// in as structured fields rather than formatting them into the message.
type Zerolog struct {
	log zerolog.Logger
}

// NewZerolog builds a console-friendly zerolog.Logger writing to stderr
// at the given level (e.g. "debug", "info", "warn", "error").
func NewZerolog(level string) *Zerolog {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger()
	return &Zerolog{log: l}
}

func (z *Zerolog) with(ev *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	return ev
}

func (z *Zerolog) Debug(msg string, args ...any) { z.with(z.log.Debug(), args).Msg(msg) }
func (z *Zerolog) Info(msg string, args ...any)  { z.with(z.log.Info(), args).Msg(msg) }
func (z *Zerolog) Warn(msg string, args ...any)  { z.with(z.log.Warn(), args).Msg(msg) }
func (z *Zerolog) Error(msg string, args ...any) { z.with(z.log.Error(), args).Msg(msg) }
