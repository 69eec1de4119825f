// Package gdrive maps Google Drive share/view links to their direct-download
// form.
package gdrive

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrorKind names the closed set of conversion failures. The values are
// part of the API error contract.
type ErrorKind string

const (
	KindInvalidURL    ErrorKind = "InvalidUrl"
	KindInvalidScheme ErrorKind = "InvalidScheme"
	KindInvalidHost   ErrorKind = "InvalidHost"
	KindNoHost        ErrorKind = "NoHost"
	KindNoIDInPath    ErrorKind = "NoIdInPath"
	KindNoSegments    ErrorKind = "NoSegments"
)

// ConvertError reports why a link could not be converted.
type ConvertError struct {
	Kind   ErrorKind
	Detail string // offending scheme or host; empty for the bare variants
}

func (e *ConvertError) Error() string {
	switch e.Kind {
	case KindInvalidURL:
		return fmt.Sprintf("invalid url: %s", e.Detail)
	case KindInvalidScheme:
		return fmt.Sprintf("invalid scheme: %s", e.Detail)
	case KindInvalidHost:
		return fmt.Sprintf("invalid host: %s", e.Detail)
	case KindNoHost:
		return "no host"
	case KindNoIDInPath:
		return "no id in path"
	case KindNoSegments:
		return "no segments"
	}
	return string(e.Kind)
}

// AsConvertError unwraps err into a *ConvertError, if it is one.
func AsConvertError(err error) (*ConvertError, bool) {
	var ce *ConvertError
	ok := errors.As(err, &ce)
	return ce, ok
}

// ConvertShareLink turns a Drive share or view link into the direct-download
// URL. The link must be https on drive.google.com with the file id as the
// third path segment, the shape produced by Drive's "copy link" button:
//
//	https://drive.google.com/file/d/<ID>/view?usp=sharing
//	  -> https://drive.google.com/uc?export=download&id=<ID>
func ConvertShareLink(shareLink string) (string, error) {
	parsed, err := url.Parse(shareLink)
	if err != nil {
		return "", &ConvertError{Kind: KindInvalidURL, Detail: shareLink}
	}

	if parsed.Scheme != "https" {
		return "", &ConvertError{Kind: KindInvalidScheme, Detail: parsed.Scheme}
	}

	host := parsed.Hostname()
	if host == "" {
		return "", &ConvertError{Kind: KindNoHost}
	}
	if host != "drive.google.com" {
		return "", &ConvertError{Kind: KindInvalidHost, Detail: host}
	}

	path := strings.TrimPrefix(parsed.EscapedPath(), "/")
	if path == "" {
		return "", &ConvertError{Kind: KindNoSegments}
	}

	// The file id is the third segment: /file/d/<ID>/...
	segments := strings.Split(path, "/")
	if len(segments) < 3 || segments[2] == "" {
		return "", &ConvertError{Kind: KindNoIDInPath}
	}
	id := segments[2]

	return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id), nil
}
