package nightly

import (
	"os"

	"golang.org/x/text/encoding/charmap"
)

// SlurpLatin1 reads the file at path and decodes it from Latin-1, the
// encoding the nightly feed ships in.
func SlurpLatin1(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
