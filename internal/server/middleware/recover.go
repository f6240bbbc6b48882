package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

// CodeInternalError is the errorCode of every generic 500.
const CodeInternalError = "INTERNAL_ERROR"

// Recoverer turns panics into a generic 500 and reports them with a stack.
func Recoverer(reporter telemetry.Reporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				ev := defectEvent(r, "unhandled panic", err)
				ev.Stack = string(debug.Stack())
				report(r, reporter, ev)
				writeInternalError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteDefect reports err and writes a generic 500. The client never sees
// the error text.
func WriteDefect(w http.ResponseWriter, r *http.Request, reporter telemetry.Reporter, message string, err error) {
	if err == nil {
		err = errors.New(message)
	}
	report(r, reporter, defectEvent(r, message, err))
	writeInternalError(w)
}

func defectEvent(r *http.Request, message string, err error) telemetry.Event {
	ev := telemetry.NewEvent(message, err)
	ev.RequestID = GetRequestID(r.Context())
	ev.Method = r.Method
	ev.Path = r.URL.Path
	return ev
}

func report(r *http.Request, reporter telemetry.Reporter, ev telemetry.Event) {
	if reporter != nil {
		reporter.Report(r.Context(), ev)
	}
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(model.NewAuthErrorResponse(http.StatusInternalServerError,
		CodeInternalError, "An unexpected error occurred", time.Now()))
}
