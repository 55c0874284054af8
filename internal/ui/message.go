package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// MsgKind enumerates the messages of the watch view.
type MsgKind int

// Msg is the message union of the watch view.
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgUpdated MsgKind = iota
	MsgOperationDone
	MsgClosed
)

type operationResult struct {
	op        string
	count     int
	fromCache bool
	age       time.Duration
	failed    int
	err       error
}

// updatedMsg is the constructor for [MsgUpdated]; the view re-reads the working set.
func updatedMsg() Msg {
	return Msg{kind: MsgUpdated}
}

// operationDoneMsg is the constructor for [MsgOperationDone]
func operationDoneMsg(res operationResult) Msg {
	return Msg{kind: MsgOperationDone, data: res}
}

// closedMsg is the constructor for [MsgClosed]
func closedMsg() Msg {
	return Msg{kind: MsgClosed}
}
