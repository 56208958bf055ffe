package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Start      func(TargetArgs) (Result, error)
	Complete   func(TargetArgs) (Result, error)
	Cancel     func(CancelArgs) (Result, error)
	Undo       func(TargetArgs) (Result, error)
	Reschedule func(RescheduleArgs) (Result, error)
	Snooze     func(AlertArgs) (Result, error)
	Dismiss    func(AlertArgs) (Result, error)
	Show       func(ShowArgs) (Result, error)
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeStart, TypeComplete, TypeUndo:
		h := map[Type]func(TargetArgs) (Result, error){
			TypeStart:    handlers.Start,
			TypeComplete: handlers.Complete,
			TypeUndo:     handlers.Undo,
		}[cmd.Type]
		if h == nil {
			return Result{}, missing(cmd.Type)
		}
		return h(*cmd.Target)
	case TypeCancel:
		if handlers.Cancel == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Cancel(*cmd.Cancel)
	case TypeReschedule:
		if handlers.Reschedule == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Reschedule(*cmd.Reschedule)
	case TypeSnooze:
		if handlers.Snooze == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Snooze(*cmd.Alert)
	case TypeDismiss:
		if handlers.Dismiss == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Dismiss(*cmd.Alert)
	case TypeShow:
		if handlers.Show == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Show(*cmd.Show)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
