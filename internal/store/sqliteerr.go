package store

import "strings"

// classifyWriteErr maps a raw sqlite driver error onto one of our sentinel
// kinds so callers never need to grep the modernc.org/sqlite error text
// themselves.
func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "foreign key"):
		return ErrForeignKey
	case strings.Contains(msg, "unique") || strings.Contains(msg, "primary key"):
		return ErrConflict
	default:
		return err
	}
}
