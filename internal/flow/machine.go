package flow

import (
	"errors"

	"lifetap/flow-backend/internal/envelope"
	"lifetap/flow-backend/internal/session"
)

// ErrInvalidTransition marks an action/screen combination the form does not
// define. It is a permanent protocol fault of the client, not something a
// retry can fix.
var ErrInvalidTransition = errors.New("invalid flow transition")

// Outcome is the result of one state-machine step. When PendingIncident is
// set the session has passed the last screen and the caller must hand the
// collected fields to the incident creator before finalizing the record;
// the state machine itself never performs I/O.
type Outcome struct {
	Response        envelope.Response
	PendingIncident bool
}

// Step applies one decrypted request to the session record. prefill carries
// data the caller resolved for the first screen (member identity looked up
// from the flow token); it is only consulted when the step lands there.
//
// Only Step mutates records; the store serializes calls per key.
func Step(rec *session.Record, req envelope.Request, prefill map[string]any) (Outcome, error) {
	switch req.Action {
	case envelope.ActionInit:
		return stepInit(rec, prefill), nil
	case envelope.ActionDataExchange:
		return stepDataExchange(rec, req, prefill)
	case envelope.ActionBack:
		return stepBack(rec)
	default:
		return Outcome{}, ErrInvalidTransition
	}
}

// stepInit always lands on the first screen, whatever screen the client
// claims to be on.
func stepInit(rec *session.Record, prefill map[string]any) Outcome {
	rec.Screen = string(FirstScreen())
	data := make(map[string]any, len(prefill))
	for k, v := range prefill {
		data[k] = v
	}
	return Outcome{Response: envelope.Response{Screen: rec.Screen, Data: data}}
}

func stepDataExchange(rec *session.Record, req envelope.Request, prefill map[string]any) (Outcome, error) {
	if rec.Terminal {
		return Outcome{}, ErrInvalidTransition
	}
	// A fresh record here means the client's session expired server-side
	// between screens; restart the form rather than fault the bystander.
	if rec.Screen == "" {
		return stepInit(rec, prefill), nil
	}

	current := Screen(rec.Screen)
	if !knownScreen(current) || Screen(req.Screen) != current {
		return Outcome{}, ErrInvalidTransition
	}

	fields, err := validate(current, req.Data)
	if err != nil {
		// Validation failures keep the screen and re-prompt; collected
		// fields from earlier screens are untouched.
		data := echoData(req.Data)
		data["error_message"] = err.Error()
		return Outcome{Response: envelope.Response{Screen: rec.Screen, Data: data}}, nil
	}

	for k, v := range fields {
		rec.Fields[k] = v
	}

	next, ok := nextScreen(current)
	if !ok {
		return Outcome{}, ErrInvalidTransition
	}
	if next == ScreenSuccess {
		return Outcome{PendingIncident: true}, nil
	}

	rec.Screen = string(next)
	return Outcome{Response: envelope.Response{Screen: rec.Screen, Data: collectedFor(rec, next)}}, nil
}

// stepBack re-enters the previous screen with its prior answers; nothing
// already collected is discarded. On the first screen it stays put.
func stepBack(rec *session.Record) (Outcome, error) {
	if rec.Terminal || rec.Screen == "" {
		return Outcome{}, ErrInvalidTransition
	}
	prev, ok := previousScreen(Screen(rec.Screen))
	if !ok {
		return Outcome{}, ErrInvalidTransition
	}
	rec.Screen = string(prev)
	return Outcome{Response: envelope.Response{Screen: rec.Screen, Data: collectedFor(rec, prev)}}, nil
}

// collectedFor extracts the already-collected values that belong to a screen
// so re-entering it re-shows prior answers.
func collectedFor(rec *session.Record, screen Screen) map[string]any {
	def := definitions[screen]
	data := make(map[string]any)
	for _, name := range def.required {
		if v, ok := rec.Fields[name]; ok {
			data[name] = v
		}
	}
	for _, name := range def.optional {
		if v, ok := rec.Fields[name]; ok {
			data[name] = v
		}
	}
	return data
}

func echoData(submitted map[string]any) map[string]any {
	data := make(map[string]any, len(submitted)+1)
	for k, v := range submitted {
		data[k] = v
	}
	return data
}
