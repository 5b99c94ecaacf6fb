package attack

import "github.com/teranos/attackls/errors"

// Format selects the text a completion inserts.
type Format string

const (
	FormatID         Format = "id"
	FormatName       Format = "name"
	FormatLink       Format = "link"
	FormatFullName   Format = "fullname"
	FormatIDName     Format = "id-name"
	FormatIDFullName Format = "id-fullname"
)

// Formats lists the accepted completion formats.
var Formats = []Format{FormatID, FormatName, FormatLink, FormatFullName, FormatIDName, FormatIDFullName}

// ParseFormat validates s as a completion format.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", errors.NewInvalidConfigError(
		"use one of: id, name, link, fullname, id-name, id-fullname",
		"unknown completion format %q", s,
	)
}

// InsertText returns the text inserted for t under format.
// Unrecognised formats behave as FormatIDName.
func InsertText(t *Technique, format Format) string {
	switch format {
	case FormatID:
		return t.ID
	case FormatName:
		return t.Name
	case FormatLink:
		return t.URL
	case FormatFullName:
		return t.FullName()
	case FormatIDFullName:
		return t.ID + " " + t.FullName()
	default:
		return t.ID + " " + t.Name
	}
}
