package transcriber

import "errors"

var (
	ErrProviderUnavailable = errors.New("speech provider unavailable")
	ErrInvalidAudioFormat  = errors.New("invalid audio format")
	ErrTransient           = errors.New("transient stream error")
	ErrWriteAfterEnd       = errors.New("write after end of stream")
)

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrWriteAfterEnd)
}
