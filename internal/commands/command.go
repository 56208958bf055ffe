package commands

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeStart      Type = "start"
	TypeComplete   Type = "complete"
	TypeCancel     Type = "cancel"
	TypeUndo       Type = "undo"
	TypeReschedule Type = "reschedule"
	TypeSnooze     Type = "snooze"
	TypeDismiss    Type = "dismiss"
	TypeShow       Type = "show"
)

// Selected is the target placeholder for whatever the caller has highlighted.
const Selected = "selected"

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TargetArgs names the instance a lifecycle command applies to.
type TargetArgs struct {
	Target string
}

type CancelArgs struct {
	Target string
	Reason string
}

type RescheduleArgs struct {
	Target string
	When   string
	Reason string
}

// AlertArgs addresses one alert. An empty Alert means the caller picks, and
// an empty For means the template's snooze interval.
type AlertArgs struct {
	Target string
	Alert  string
	For    string
}

type ShowArgs struct {
	Subject string
	Tag     string
}

type Command struct {
	Type       Type
	Raw        string
	Target     *TargetArgs
	Cancel     *CancelArgs
	Reschedule *RescheduleArgs
	Alert      *AlertArgs
	Show       *ShowArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch t := Type(head); t {
	case TypeStart, TypeComplete, TypeUndo:
		return parseTarget(input, t, args)
	case TypeCancel:
		return parseCancel(input, args)
	case TypeReschedule:
		return parseReschedule(input, args)
	case TypeSnooze, TypeDismiss:
		return parseAlert(input, t, args)
	case TypeShow:
		return parseShow(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func target(t Type, args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires a target", t)}
	}
	tgt := args[0]
	if strings.EqualFold(tgt, Selected) || tgt == "." {
		tgt = Selected
	}
	return tgt, args[1:], nil
}

func parseTarget(raw string, t Type, args []string) (Command, error) {
	tgt, rest, err := target(t, args)
	if err != nil {
		return Command{}, err
	}
	if len(rest) > 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s takes only a target", t)}
	}
	return Command{Type: t, Raw: raw, Target: &TargetArgs{Target: tgt}}, nil
}

func parseCancel(raw string, args []string) (Command, error) {
	tgt, rest, err := target(TypeCancel, args)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: TypeCancel, Raw: raw, Cancel: &CancelArgs{Target: tgt, Reason: strings.Join(rest, " ")}}, nil
}

// reschedule <target> <when...> [because <reason...>]
func parseReschedule(raw string, args []string) (Command, error) {
	tgt, rest, err := target(TypeReschedule, args)
	if err != nil {
		return Command{}, err
	}
	var when, reason []string
	for i, arg := range rest {
		if strings.EqualFold(arg, "because") {
			reason = rest[i+1:]
			break
		}
		when = append(when, arg)
	}
	if len(when) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "reschedule requires target and time"}
	}
	return Command{Type: TypeReschedule, Raw: raw, Reschedule: &RescheduleArgs{
		Target: tgt,
		When:   strings.Join(when, " "),
		Reason: strings.Join(reason, " "),
	}}, nil
}

// snooze|dismiss <target> [alert:<id>] [duration...]
func parseAlert(raw string, t Type, args []string) (Command, error) {
	tgt, rest, err := target(t, args)
	if err != nil {
		return Command{}, err
	}
	a := &AlertArgs{Target: tgt}
	var dur []string
	for _, arg := range rest {
		if strings.HasPrefix(strings.ToLower(arg), "alert:") {
			a.Alert = strings.TrimSpace(arg[len("alert:"):])
			continue
		}
		dur = append(dur, arg)
	}
	if t == TypeDismiss && len(dur) > 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "dismiss takes no duration"}
	}
	a.For = strings.Join(dur, " ")
	return Command{Type: t, Raw: raw, Alert: a}, nil
}

func parseShow(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "show requires a subject"}
	}
	subject := strings.ToLower(args[0])
	tag := ""
	for _, arg := range args[1:] {
		if strings.HasPrefix(strings.ToLower(arg), "tag:") {
			tag = strings.TrimSpace(arg[len("tag:"):])
		}
	}
	return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject, Tag: tag}}, nil
}
