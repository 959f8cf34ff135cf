package ceremony

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/f3rmion/frostguard/codec"
)

// Step is one stage of a ceremony.
type Step int

const (
	StepReset Step = iota
	StepLoadKeys
	StepCommit
	StepInjectMessage
	StepInjectCommitments
	StepInjectChallenge
	StepSign
	StepAggregate
)

func (s Step) String() string {
	switch s {
	case StepReset:
		return "reset"
	case StepLoadKeys:
		return "load keys"
	case StepCommit:
		return "commit"
	case StepInjectMessage:
		return "inject message"
	case StepInjectCommitments:
		return "inject commitments"
	case StepInjectChallenge:
		return "inject challenge"
	case StepSign:
		return "sign"
	case StepAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Event reports a finished step. Participant is zero for steps that
// concern the whole ceremony.
type Event struct {
	Step        Step
	Participant codec.ID
	Err         error
}

// Observer receives ceremony events. Observe may be called from several
// goroutines at once.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// LogObserver writes events to a slog logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) Observe(e Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{slog.String("step", e.Step.String())}
	if !e.Participant.IsZero() {
		attrs = append(attrs, slog.String("participant", e.Participant.String()))
	}
	level := slog.LevelInfo
	if e.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.Any("err", e.Err))
	}
	logger.LogAttrs(context.Background(), level, "ceremony step", attrs...)
}
