package events

type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeDone     Type = "done"
	TypeOutput   Type = "output"
)

// Event is one message on an operation stream or a console stream. Data
// returns the payload that goes on the wire for its type.
type Event struct {
	Type    Type
	Message string
	Percent float64
	Detail  string
	OK      bool
	Line    string
	Code    *int
	Exit    bool
}

type StatusData struct {
	Message string `json:"message"`
}

type ProgressData struct {
	Percent float64 `json:"percent"`
	Detail  string  `json:"detail"`
}

type DoneData struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type OutputData struct {
	Line string `json:"line"`
}

type ExitData struct {
	Code *int `json:"code"`
}

func (e Event) Data() interface{} {
	switch e.Type {
	case TypeStatus:
		return StatusData{Message: e.Message}
	case TypeProgress:
		return ProgressData{Percent: e.Percent, Detail: e.Detail}
	case TypeOutput:
		return OutputData{Line: e.Line}
	case TypeDone:
		if e.Exit {
			return ExitData{Code: e.Code}
		}
		return DoneData{OK: e.OK, Message: e.Message}
	}
	return nil
}

func Status(msg string) Event { return Event{Type: TypeStatus, Message: msg} }

func Progress(percent float64, detail string) Event {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Event{Type: TypeProgress, Percent: percent, Detail: detail}
}

func Done(ok bool, msg string) Event { return Event{Type: TypeDone, OK: ok, Message: msg} }

func Output(line string) Event { return Event{Type: TypeOutput, Line: line} }

// Exited is the terminal event of a console stream. code is nil when the
// exit status is unknown.
func Exited(code *int) Event { return Event{Type: TypeDone, Code: code, Exit: true} }
