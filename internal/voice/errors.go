package voice

import "errors"

var (
	ErrProfileNotFound       = errors.New("voice profile not found")
	ErrAlreadyRecording      = errors.New("already recording")
	ErrNotRecording          = errors.New("not recording")
	ErrProfileMismatch       = errors.New("profile does not match the active recording")
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	ErrDecodeFailure         = errors.New("failed to decode captured audio")
)
