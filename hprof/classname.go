package hprof

import "strings"

// primitiveDescriptor maps a JVM primitive type descriptor character to its
// rendered name.
var primitiveDescriptor = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
}

const unknownClassName = "<unknown>"
const corruptClassName = "<corrupt>"

// renderClassName converts a raw JVM internal class name (slash-separated,
// possibly an array descriptor) into dotted form with "elem[]" suffixes.
// e.g. "java/lang/String" -> "java.lang.String", "[Ljava/lang/Object;" ->
// "java.lang.Object[]", "[[I" -> "int[][]".
func renderClassName(raw string) string {
	if raw == "" {
		return unknownClassName
	}
	depth := 0
	i := 0
	for i < len(raw) && raw[i] == '[' {
		depth++
		i++
	}
	rest := raw[i:]
	if depth == 0 {
		// plain class name, no array descriptor: already in slash form.
		return strings.ReplaceAll(rest, "/", ".")
	}
	if rest == "" {
		return corruptClassName
	}
	switch rest[0] {
	case 'L':
		body := strings.TrimSuffix(strings.TrimPrefix(rest, "L"), ";")
		return strings.ReplaceAll(body, "/", ".") + strings.Repeat("[]", depth)
	default:
		name, ok := primitiveDescriptor[rest[0]]
		if !ok {
			return corruptClassName
		}
		return name + strings.Repeat("[]", depth)
	}
}
