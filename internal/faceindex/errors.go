package faceindex

import "errors"

var (
	// ErrNoReferenceFace is returned by Search when the reference image
	// contains no usable face. It is distinct from an empty result list.
	ErrNoReferenceFace = errors.New("no usable reference face")
	// ErrReferenceUnreadable is returned when the reference image cannot be
	// read or decoded.
	ErrReferenceUnreadable = errors.New("reference image unreadable")
	// ErrIndexNotInitialized is returned by searches before Initialize or a
	// successful Load.
	ErrIndexNotInitialized = errors.New("face index not initialized")
)
