package artifacts

import "errors"

var (
	// ErrSourceMissing means Save was asked to store a file that does not
	// exist on disk.
	ErrSourceMissing = errors.New("source file missing")

	// ErrArtifactNotFound means the manifest has never recorded the key.
	// The caller may recompute the artifact.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrArtifactMissingOnDisk means the manifest records the key but the
	// backing file is gone. This signals external tampering or a prior
	// crash and should be treated as corruption, not as "recompute".
	ErrArtifactMissingOnDisk = errors.New("artifact file missing on disk")

	// ErrStorage means the project tree could not be created or written.
	ErrStorage = errors.New("storage failure")
)
