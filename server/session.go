package server

import (
	"strings"

	"txnkv/engine"
)

// session tracks the one transaction, if any, a connection currently has
// open. A connection with no explicit BEGIN runs every command as its own
// autocommit transaction.
type session struct {
	eng *engine.Engine
	txn *engine.Transaction
}

func newSession(eng *engine.Engine) *session {
	return &session{eng: eng}
}

// closeAutocommitTxn aborts any transaction still open when the connection
// drops, so its locks aren't held forever.
func (s *session) closeAutocommitTxn() {
	if s.txn != nil {
		s.eng.Abort(s.txn)
		s.txn = nil
	}
}

// dispatch parses and runs one command line, returning the line to send
// back to the client.
func (s *session) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERROR empty command"
	}

	cmd := strings.ToUpper(fields[0])
	switch cmd {
	case "BEGIN":
		return s.handleBegin()
	case "GET":
		if len(fields) != 2 {
			return "ERROR usage: GET <key>"
		}
		return s.handleGet(fields[1])
	case "SET":
		if len(fields) < 3 {
			return "ERROR usage: SET <key> <value>"
		}
		value := strings.Join(fields[2:], " ")
		return s.handleSet(fields[1], value)
	case "COMMIT":
		return s.handleCommit()
	case "ABORT":
		return s.handleAbort()
	default:
		return "ERROR unknown command " + cmd
	}
}

func (s *session) handleBegin() string {
	if s.txn != nil {
		return "ERROR transaction already open"
	}
	txn, err := s.eng.Begin()
	if err != nil {
		return errorReply(err)
	}
	s.txn = txn
	return "OK"
}

// withTxn runs fn against either the explicit open transaction or a fresh
// autocommit one, committing/aborting the autocommit transaction itself
// once fn returns.
func (s *session) withTxn(fn func(txn *engine.Transaction) (string, error)) string {
	if s.txn != nil {
		reply, err := fn(s.txn)
		if err != nil {
			s.eng.Abort(s.txn)
			s.txn = nil
			return errorReply(err)
		}
		return reply
	}

	txn, err := s.eng.Begin()
	if err != nil {
		return errorReply(err)
	}
	reply, err := fn(txn)
	if err != nil {
		s.eng.Abort(txn)
		return errorReply(err)
	}
	if cerr := s.eng.Commit(txn); cerr != nil {
		return errorReply(cerr)
	}
	return reply
}

func (s *session) handleGet(key string) string {
	return s.withTxn(func(txn *engine.Transaction) (string, error) {
		v, err := s.eng.Get(txn, key)
		if err != nil {
			return "", err
		}
		return string(v), nil
	})
}

func (s *session) handleSet(key, value string) string {
	return s.withTxn(func(txn *engine.Transaction) (string, error) {
		if err := s.eng.Put(txn, key, []byte(value)); err != nil {
			return "", err
		}
		return "OK", nil
	})
}

func (s *session) handleCommit() string {
	if s.txn == nil {
		return "ERROR no open transaction"
	}
	txn := s.txn
	s.txn = nil
	if err := s.eng.Commit(txn); err != nil {
		return errorReply(err)
	}
	return "OK"
}

func (s *session) handleAbort() string {
	if s.txn == nil {
		return "ERROR no open transaction"
	}
	txn := s.txn
	s.txn = nil
	s.eng.Abort(txn)
	return "OK"
}

func errorReply(err error) string {
	if kind, ok := engine.ErrKind(err); ok {
		return "ERROR " + kind.String() + " " + err.Error()
	}
	return "ERROR " + err.Error()
}
