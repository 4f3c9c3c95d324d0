// Package wire implements the text frames exchanged between the benchmark
// driver and its workers.
//
// A request is space-separated fields: "<command> <account_guid>", where
// command is one of debit, credit, amount — or the bare "exit", which tells
// the worker to stop and is acknowledged with an empty frame. A successful
// response echoes the request fields followed by begin/end timestamps in
// unix nanoseconds; a failed one echoes the fields followed by the literal
// token "error" and a message.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Command is a driver-issued operation.
type Command string

const (
	CmdDebit  Command = "debit"
	CmdCredit Command = "credit"
	CmdAmount Command = "amount"
	CmdExit   Command = "exit"
)

// errToken marks an error response in the third field.
const errToken = "error"

var (
	ErrEmptyFrame     = errors.New("wire: empty frame")
	ErrBadFrame       = errors.New("wire: malformed frame")
	ErrUnknownCommand = errors.New("wire: unknown command")
)

// Request is one operation dispatched to a worker.
type Request struct {
	Command     Command
	AccountGUID string
}

// Encode renders the request as a text frame.
func (r Request) Encode() []byte {
	if r.Command == CmdExit {
		return []byte(CmdExit)
	}
	return []byte(string(r.Command) + " " + r.AccountGUID)
}

// ParseRequest decodes a request frame.
func ParseRequest(frame []byte) (Request, error) {
	fields := strings.Fields(string(frame))
	switch {
	case len(fields) == 0:
		return Request{}, ErrEmptyFrame
	case fields[0] == string(CmdExit):
		return Request{Command: CmdExit}, nil
	case len(fields) != 2:
		return Request{}, fmt.Errorf("%w: %q", ErrBadFrame, frame)
	}

	cmd := Command(fields[0])
	switch cmd {
	case CmdDebit, CmdCredit, CmdAmount:
		return Request{Command: cmd, AccountGUID: fields[1]}, nil
	}
	return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
}

// Response is a worker's reply: the echoed request plus either the
// operation's begin/end timestamps or an error message.
type Response struct {
	Command     Command
	AccountGUID string
	Begin       time.Time
	End         time.Time
	Err         string
}

// Elapsed is the worker-measured execution time of the operation.
func (r Response) Elapsed() time.Duration {
	return r.End.Sub(r.Begin)
}

// OK reports whether the operation succeeded.
func (r Response) OK() bool { return r.Err == "" }

// Encode renders the response as a text frame. An exit acknowledgement is
// the empty frame.
func (r Response) Encode() []byte {
	if r.Command == CmdExit {
		return []byte{}
	}
	if r.Err != "" {
		return []byte(fmt.Sprintf("%s %s %s %s",
			r.Command, r.AccountGUID, errToken, r.Err))
	}
	return []byte(fmt.Sprintf("%s %s %d %d",
		r.Command, r.AccountGUID, r.Begin.UnixNano(), r.End.UnixNano()))
}

// ParseResponse decodes a response frame. The empty frame is the exit
// acknowledgement.
func ParseResponse(frame []byte) (Response, error) {
	s := strings.TrimSpace(string(frame))
	if s == "" {
		return Response{Command: CmdExit}, nil
	}

	fields := strings.SplitN(s, " ", 4)
	if len(fields) < 4 {
		return Response{}, fmt.Errorf("%w: %q", ErrBadFrame, frame)
	}

	resp := Response{
		Command:     Command(fields[0]),
		AccountGUID: fields[1],
	}
	switch resp.Command {
	case CmdDebit, CmdCredit, CmdAmount:
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}

	if fields[2] == errToken {
		resp.Err = fields[3]
		return resp, nil
	}

	begin, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Response{}, fmt.Errorf("%w: bad begin timestamp %q", ErrBadFrame, fields[2])
	}
	end, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Response{}, fmt.Errorf("%w: bad end timestamp %q", ErrBadFrame, fields[3])
	}
	resp.Begin = time.Unix(0, begin)
	resp.End = time.Unix(0, end)
	return resp, nil
}
