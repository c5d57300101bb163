package chat

import "errors"

// ErrBusy is returned when a turn is requested while another is generating.
var ErrBusy = errors.New("chat: a response is already being generated")
