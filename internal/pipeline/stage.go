package pipeline

import "fmt"

// Stage is a step of a single prediction run.
// A run moves Idle → Preprocessing → Invoking → Decoding → Classifying → Done,
// or ends in Failed from whichever stage went wrong.
type Stage int

const (
	Idle Stage = iota
	Preprocessing
	Invoking
	Decoding
	Classifying
	Done
	Failed
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preprocessing:
		return "preprocessing"
	case Invoking:
		return "invoking"
	case Decoding:
		return "decoding"
	case Classifying:
		return "classifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError records which stage a failed run stopped in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
