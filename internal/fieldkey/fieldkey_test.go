package fieldkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromString(t *testing.T) {
	k := FromString("Sample.Study.Label")
	assert.Equal(t, 3, k.Len())
	assert.Equal(t, []string{"Sample", "Study", "Label"}, k.Parts())
	assert.Equal(t, "Label", k.Name())
	assert.Equal(t, "Sample", k.Root())
	assert.Equal(t, "Sample.Study", k.Parent().String())
	assert.Equal(t, "Study.Label", k.Rest().String())
	assert.Equal(t, "Sample.Study.Label", k.String())
}

func TestEmpty(t *testing.T) {
	var k FieldKey
	assert.True(t, k.IsEmpty())
	assert.Equal(t, 0, k.Len())
	assert.Nil(t, k.Parts())
	assert.Equal(t, "", k.Name())
	assert.True(t, FromString("").IsEmpty())
	assert.True(t, FromParts("Name").Parent().IsEmpty())
	assert.True(t, FromParts("Name").Rest().IsEmpty())
}

func TestChild(t *testing.T) {
	k := FieldKey{}.Child("Sample").Child("Name")
	assert.Equal(t, FromParts("Sample", "Name"), k)
	assert.Equal(t, "Sample.Name", k.String())
}

func TestEqualIgnoresCase(t *testing.T) {
	assert.True(t, FromString("sample.NAME").Equal(FromString("Sample.Name")))
	assert.False(t, FromString("Sample.Name").Equal(FromString("Sample")))
	assert.Equal(t, FromString("ROWID").Key(), FromString("rowid").Key())
	assert.NotEqual(t, FromString("ROWID"), FromString("rowid"))
}

func TestEncodeRoundTrip(t *testing.T) {
	k := FromParts("a/b", "c$d", "$S")
	assert.Equal(t, "a$Sb/c$Dd/$DS", k.Encode())
	assert.Equal(t, []string{"a/b", "c$d", "$S"}, Decode(k.Encode()).Parts())
	assert.Equal(t, "$S", k.Name())
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"a", "a", 0},
		{"A", "a", 0},
		{"a", "b", -1},
		{"a.b", "a", 1},
		{"a", "a.b", -1},
	}
	for _, tt := range tests {
		got := FromString(tt.a).Compare(FromString(tt.b))
		switch {
		case tt.want < 0:
			assert.Negative(t, got, "%s vs %s", tt.a, tt.b)
		case tt.want > 0:
			assert.Positive(t, got, "%s vs %s", tt.a, tt.b)
		default:
			assert.Zero(t, got, "%s vs %s", tt.a, tt.b)
		}
	}
}
