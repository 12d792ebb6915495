package nightly

import "strings"

// SplitTagLine splits one feed line into its leading tag name and the text
// after the first ">". Attributes after a space inside the tag are
// discarded, so "<LINK rel=x>y" yields ("LINK", "y"). Lines without a
// leading tag return ErrNoTag.
func SplitTagLine(line string) (tag string, rest string, err error) {
	if !strings.HasPrefix(line, "<") || !strings.Contains(line, ">") {
		return "", "", ErrNoTag
	}
	head, rest, _ := strings.Cut(line, ">")
	if i := strings.IndexByte(head, ' '); i >= 0 {
		head = head[:i]
	}
	return head[1:], rest, nil
}
