package util

import "strings"

var segEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Join escapes each id and joins them with ':'.
// Ids that contain ':' cannot collide across positions.
func Join(ids ...string) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return segEscaper.Replace(ids[0])
	}
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(segEscaper.Replace(id))
	}
	return b.String()
}

// Key prefixes Join(ids...) with a namespace.
func Key(ns string, ids ...string) string {
	if len(ids) == 0 {
		return ns
	}
	return ns + ":" + Join(ids...)
}
