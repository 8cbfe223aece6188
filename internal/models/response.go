package models

// Response is the envelope returned by every command. Success is true exactly when
// Error is nil, and Data is only present on success.
type Response[T any] struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Data    *T      `json:"data"`
	Error   *string `json:"error"`
}

// OK builds a successful envelope
func OK[T any](message string, data T) Response[T] {
	return Response[T]{
		Success: true,
		Message: message,
		Data:    &data,
	}
}

// Fail builds a failed envelope. A nil err still yields a populated Error so the
// success/error correspondence holds.
func Fail[T any](message string, err error) Response[T] {
	detail := message
	if err != nil {
		detail = err.Error()
	}
	return Response[T]{
		Success: false,
		Message: message,
		Error:   &detail,
	}
}
