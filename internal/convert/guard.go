package convert

import (
	"filetool/internal/formats"
)

// DefaultMaxFileSize is the default upper bound on input size (200 MiB).
const DefaultMaxFileSize int64 = 200 << 20

// CheckSize returns a CodeFileTooLarge error when file is larger than
// limit. A file of exactly limit bytes is accepted. A limit <= 0 uses
// DefaultMaxFileSize.
func CheckSize(file SourceFile, limit int64) error {
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	if size := file.Size(); size > limit {
		return &Error{Code: CodeFileTooLarge, Limit: limit, Actual: size}
	}
	return nil
}

// CheckIdentical returns a CodeIdenticalFormat error when target names the
// same format as the source extension, including aliases such as jpg and
// jpeg.
func CheckIdentical(sourceExt, target string) error {
	if formats.Equivalent(sourceExt, target) {
		return newError(CodeIdenticalFormat, formats.Normalize(sourceExt)+" to "+formats.Normalize(target), nil)
	}
	return nil
}
