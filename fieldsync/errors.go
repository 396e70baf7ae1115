// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Class buckets remote failures into the retry policy they deserve.
type Class int

const (
	// ClassTransient covers timeouts and connection failures; the queue
	// retries these up to MaxRetries.
	ClassTransient Class = iota
	// ClassAuth covers expired or rejected credentials; never retried by the
	// queue, surfaced so the auth layer can re-authenticate and re-drive.
	ClassAuth
	// ClassConflict marks a divergent server version; resolved by the
	// Resolver, never surfaced as a failure.
	ClassConflict
	// ClassPermanent covers malformed payloads and other client errors that
	// no retry can fix; dropped immediately without consuming retry budget.
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassAuth:
		return "auth"
	case ClassConflict:
		return "conflict"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// RemoteError is a classified failure from the remote API.
type RemoteError struct {
	Class  Class
	Status int // HTTP status when known, 0 for transport-level failures
	Msg    string
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote error (%s, status %d): %s", e.Class, e.Status, e.Msg)
	}
	return fmt.Sprintf("remote error (%s): %s", e.Class, e.Msg)
}

// ClassOf extracts the class of an error. Anything unclassified (transport
// errors, cancelled contexts) is treated as transient so the retry policy
// absorbs it.
func ClassOf(err error) Class {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Class
	}
	return ClassTransient
}

// classifyStatus maps an HTTP response status to a RemoteError class.
func classifyStatus(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &RemoteError{Class: ClassAuth, Status: status, Msg: body}
	case status == http.StatusConflict:
		return &RemoteError{Class: ClassConflict, Status: status, Msg: body}
	case status >= 400 && status < 500:
		return &RemoteError{Class: ClassPermanent, Status: status, Msg: body}
	default:
		return &RemoteError{Class: ClassTransient, Status: status, Msg: body}
	}
}

// transportError wraps a network-level failure as transient, keeping context
// cancellation visible to errors.Is.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &RemoteError{Class: ClassTransient, Msg: err.Error()}
}
