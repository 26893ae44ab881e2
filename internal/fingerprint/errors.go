package fingerprint

import "errors"

// ErrNotUTF8 is returned by Compute when the raw capture bytes are not
// valid UTF-8 and therefore cannot be parsed into a feature stream.
var ErrNotUTF8 = errors.New("fingerprint: input is not valid UTF-8")
