package storage

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// 清洗后的文件名只含安全字符，不以点开头，且不超过长度上限
func TestProperty_SanitizeFilename(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("sanitized names are safe, non-hidden and bounded", prop.ForAll(
		func(name string, maxLen int) bool {
			got := sanitizeFilename(name, maxLen)
			if got == "" || !safeName.MatchString(got) {
				t.Logf("unsafe result %q for %q", got, name)
				return false
			}
			if strings.HasPrefix(got, ".") {
				t.Logf("hidden result %q for %q", got, name)
				return false
			}
			return len(got) <= maxLen
		},
		gen.AnyString(),
		gen.IntRange(1, 120),
	))

	properties.Property("already safe names are kept", prop.ForAll(
		func(name string) bool {
			return sanitizeFilename(name, 0) == name
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// 任意由 ".."、"." 与普通段拼成的相对路径，要么被拒绝，要么落在存储根之内
func TestProperty_ConfineNeverEscapesRoot(t *testing.T) {
	s := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	segments := []string{"..", ".", "artifacts", "video_raw", "a.mp4", "", "metadata"}
	segment := gen.IntRange(0, len(segments)-1).Map(func(i int) string { return segments[i] })
	properties.Property("confined paths stay strictly inside the root", prop.ForAll(
		func(parts []string) bool {
			rel := strings.Join(parts, "/")
			abs, err := s.confine(rel)
			if err != nil {
				return true
			}
			if abs == s.root || !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
				t.Logf("%q resolved outside root: %s", rel, abs)
				return false
			}
			return true
		},
		gen.SliceOf(segment),
	))

	properties.TestingRun(t)
}
