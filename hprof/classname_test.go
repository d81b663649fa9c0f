package hprof

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderClassName(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"java/lang/String", "java.lang.String"},
		{"[Ljava/lang/Object;", "java.lang.Object[]"},
		{"[[I", "int[][]"},
		{"[B", "byte[]"},
		{"", unknownClassName},
		{"[", corruptClassName},
		{"[Q", corruptClassName},
	}
	for _, c := range cases {
		require.Equal(t, c.want, renderClassName(c.raw), "renderClassName(%q)", c.raw)
	}
}
