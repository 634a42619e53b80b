package store

import (
	"errors"
	"fmt"
)

var errUnreadable = errors.New("driver value has an unexpected representation")

func goType(v any) string { return fmt.Sprintf("%T", v) }
