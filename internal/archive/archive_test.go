package archive

import (
	"strings"
	"testing"
	"time"
)

func TestObjectName(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	name := ObjectName("user-1", "statement.csv", now)

	if !strings.HasPrefix(name, "imports/user-1/2025-03-14-") {
		t.Errorf("unexpected prefix: %s", name)
	}
	if !strings.HasSuffix(name, "-statement.csv") {
		t.Errorf("unexpected suffix: %s", name)
	}
}

func TestObjectName_StripsDirectories(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	name := ObjectName("user-1", "../../etc/passwd", now)

	if strings.Contains(name, "..") {
		t.Errorf("directory components leaked into object name: %s", name)
	}
	if !strings.HasSuffix(name, "-passwd") {
		t.Errorf("unexpected suffix: %s", name)
	}
}
