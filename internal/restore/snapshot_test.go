package restore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopyTargetID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain identifier", "mydb-snapshot", "mydb-snapshot-copy"},
		{"arn input keeps only the identifier", "arn:aws:rds:eu-central-1:123456789012:snapshot:mydb-snapshot", "mydb-snapshot-copy"},
		{"uppercase is lowered", "MyDB-Snapshot", "mydb-snapshot-copy"},
		{"invalid characters dropped", "my_db.snap!shot", "mydbsnapshot-copy"},
		{"consecutive hyphens collapse", "mydb--snap---shot", "mydb-snap-shot-copy"},
		{"leading and trailing hyphens trimmed", "-mydb-snapshot-", "mydb-snapshot-copy"},
		{"leading digit gets a letter prefix", "2024-backup", "a2024-backup-copy"},
		{"empty after sanitizing", "___", "a-copy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CopyTargetID(tt.in))
		})
	}
}

func TestCopyTargetIDIsDeterministic(t *testing.T) {
	// The same source snapshot must always map to the same copy name so a
	// re-run finds the earlier copy.
	a := CopyTargetID("arn:aws:rds:eu-central-1:123456789012:snapshot:nightly")
	b := CopyTargetID("nightly")
	assert.Equal(t, a, b)
}
