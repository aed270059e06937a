package cactus

import "errors"

var (
	// ErrBusy is returned when a handle already has an operation in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrNotDownloaded is returned when initializing a model missing from the cache.
	ErrNotDownloaded = errors.New("model not downloaded")
	// ErrNotInitialized is returned when generating before a model is loaded.
	ErrNotInitialized = errors.New("model not initialized")
	// ErrNoMessages is returned for a completion request without messages.
	ErrNoMessages = errors.New("no messages to complete")
	// ErrEmptyInput is returned for an embedding request without text.
	ErrEmptyInput = errors.New("empty input")
	// ErrGenerationFailed is returned when the engine reports an unsuccessful result.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrNoDownloadURL is returned for a model with neither a DownloadURL nor a downloader base URL.
	ErrNoDownloadURL = errors.New("no download url")
	// ErrUnloaded is returned when the handle was unloaded while the operation ran.
	ErrUnloaded = errors.New("handle unloaded")
	// ErrNoAudioSource is returned when transcribing without a file or audio source.
	ErrNoAudioSource = errors.New("no audio file or audio source")
	// ErrRemoteToken is returned when a remote completion has no API token.
	ErrRemoteToken = errors.New("remote inference requires a cactus token")
	// ErrRemoteUnavailable is returned when a remote completion has no configured endpoint.
	ErrRemoteUnavailable = errors.New("remote inference not configured")
	// ErrUnsupportedPlatform is returned by the native loader where libcactus cannot run.
	ErrUnsupportedPlatform = errors.New("native runtime not supported on this platform")
)
